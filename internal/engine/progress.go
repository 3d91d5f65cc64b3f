package engine

import "math"

// ClampProgress ограничивает значение прогресса диапазоном [0, 100].
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// AdvanceProgress возвращает новое значение прогресса шага.
//
// Значение обрезается до [0, 100]. Если результат меньше текущего,
// возвращается текущее и ok=false: уменьшение прогресса не является
// ошибкой, оно просто отбрасывается.
func AdvanceProgress(current, reported int) (next int, ok bool) {
	reported = ClampProgress(reported)
	if reported <= current {
		return current, reported == current
	}
	return reported, true
}

// OverallProgress вычисляет взвешенный общий прогресс:
//
//	round(Σ(weight_i × progress_i) / Σ(weight_i))
//
// Слайсы должны иметь одинаковую длину. Неположительные веса
// трактуются как 1.
func OverallProgress(weights []float64, progress []int) int {
	var sumWeights, sum float64
	for i, p := range progress {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		sumWeights += w
		sum += w * float64(ClampProgress(p))
	}
	if sumWeights == 0 {
		return 0
	}
	return ClampProgress(int(math.Round(sum / sumWeights)))
}

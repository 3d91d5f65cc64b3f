package steps

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// StepTypeDelay — тип шага задержки.
	StepTypeDelay = "delay"

	// Ключи конфигурации delay.
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
	configTicks       = "ticks"
	configMessage     = "message"
	configFailMessage = "fail_message"

	defaultDelayTicks = 10
	maxDelayTicks     = 100
)

// DelayStep — шаг задержки с промежуточным прогрессом.
//
// Делит длительность на ticks равных интервалов и после каждого
// сообщает прогресс. Используется как заглушка долгих операций
// (сборка, загрузка, прогон тестов) и в демонстрационных pipeline.
//
// Конфигурация:
//
//	{
//	    "duration_ms": 5000,          // или duration_sec
//	    "ticks": 10,                  // количество отчётов о прогрессе
//	    "message": "image built",     // сообщение об успехе
//	    "fail_message": "disk full"   // если задано — шаг падает в конце
//	}
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Type возвращает тип шага.
func (s *DelayStep) Type() string {
	return StepTypeDelay
}

// Execute выполняет задержку.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	duration, err := s.parseDuration(req.Config)
	if err != nil {
		return nil, err
	}

	ticks := GetConfigInt(req.Config, configTicks)
	if ticks <= 0 {
		ticks = defaultDelayTicks
	}
	ticks = min(ticks, maxDelayTicks)

	interval := duration / time.Duration(ticks)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 1; i <= ticks; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		case <-timer.C:
		}

		if i < ticks {
			req.Progress(i * 100 / ticks)
			timer.Reset(interval)
		}
	}

	if failMsg := GetConfigString(req.Config, configFailMessage); failMsg != "" {
		return nil, errors.New(failMsg)
	}

	msg := GetConfigString(req.Config, configMessage)
	if msg == "" {
		msg = fmt.Sprintf("waited %s", duration)
	}

	return NewResponse(msg, map[string]any{
		"duration_ms": duration.Milliseconds(),
	}), nil
}

// parseDuration извлекает длительность из конфигурации.
func (s *DelayStep) parseDuration(config map[string]any) (time.Duration, error) {
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required",
		ErrInvalidConfig, StepTypeDelay)
}

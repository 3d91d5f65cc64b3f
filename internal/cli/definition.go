package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// NewDefinitionCmd создаёт группу команд для управления определениями.
func NewDefinitionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "definition",
		Aliases: []string{"def"},
		Short:   "Manage pipeline definitions",
	}

	cmd.AddCommand(
		newDefinitionListCmd(clientFn, outputFn),
		newDefinitionShowCmd(clientFn, outputFn),
		newDefinitionApplyCmd(clientFn, outputFn),
		newDefinitionDeleteCmd(clientFn, outputFn),
		newScheduleCmd(clientFn, outputFn),
	)

	return cmd
}

func newDefinitionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListDefinitions()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STEPS", "SCHEDULED", "ACTIVE", "UPDATED"}
			rows := make([][]string, len(defs))
			for i, d := range defs {
				scheduled := d.Schedule != nil && d.Schedule.Enabled
				rows[i] = []string{
					d.ID, d.Name, strconv.Itoa(d.Steps),
					strconv.FormatBool(scheduled), strconv.FormatBool(d.Active), d.UpdatedAt,
				}
			}

			out.Print(headers, rows, defs)
			return nil
		},
	}
}

func newDefinitionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show definition steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetDefinition(args[0])
			if err != nil {
				return err
			}

			headers := []string{"#", "STEP", "TITLE", "TYPE", "WEIGHT"}
			rows := make([][]string, len(def.Steps))
			for i, s := range def.Steps {
				weight := "1"
				if s.Weight > 0 {
					weight = strconv.FormatFloat(s.Weight, 'f', -1, 64)
				}
				rows[i] = []string{strconv.Itoa(i + 1), s.ID, s.Title, s.Type, weight}
			}

			out.Print(headers, rows, def)
			return nil
		},
	}
}

func newDefinitionApplyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var id string

	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or replace a definition from a JSON or TOML file",
		Long: `Create or replace a definition from a file.

Files with the .toml extension are parsed as TOML, everything else as JSON.
Use "-f -" to read JSON from stdin. The definition ID is taken from --id
or from the "id" field of the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			body, fileID, err := readDefinitionFile(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if id == "" {
				id = fileID
			}
			if id == "" {
				return errors.New("definition id is required: set --id or \"id\" in the file")
			}

			def, err := client.ApplyDefinition(id, body)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition applied: %s (%d steps)", def.ID, len(def.Steps)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Definition file (JSON or TOML, - for stdin)")
	cmd.Flags().StringVar(&id, "id", "", "Definition ID (overrides the file)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newDefinitionDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteDefinition(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition deleted: %s", args[0]))
			return nil
		},
	}
}

// readDefinitionFile читает определение и возвращает его JSON и поле "id".
func readDefinitionFile(path string, stdin io.Reader) (json.RawMessage, string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}

	var doc map[string]any
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, "", fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode definition: %w", err)
	}

	id, _ := doc["id"].(string)
	return body, id, nil
}

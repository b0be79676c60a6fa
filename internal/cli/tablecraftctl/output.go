package tablecraftctl

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var validFormats = []string{"json", "yaml"}

func isValidFormat(format string) bool {
	for _, candidate := range validFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

// render writes a decoded API response in the requested format.
func render(w io.Writer, format string, value any) error {
	if value == nil {
		return nil
	}
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	default:
		formatted, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(formatted))
		return err
	}
}

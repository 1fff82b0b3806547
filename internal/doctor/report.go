package doctor

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteText renders findings for humans.
func WriteText(w io.Writer, findings []Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings. The route table passed all doctor checks.")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(w, "%s [%s] %s\n", f.ID, f.Severity, f.Route)
		fmt.Fprintf(w, "%s\n", f.Message)
		fmt.Fprintf(w, "Fix: %s\n\n", f.Fix)
	}
}

// jsonFinding carries the severity as its string form.
type jsonFinding struct {
	Finding
	Severity string `json:"severity"`
}

// WriteJSON renders findings machine-readably.
func WriteJSON(w io.Writer, findings []Finding) error {
	out := make([]jsonFinding, len(findings))
	for i, f := range findings {
		out[i] = jsonFinding{Finding: f, Severity: f.Severity.String()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package stats

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/verte-zerg/topy/internal/model"
)

// RenderHistory prints the dump runs as a table followed by a summary.
func RenderHistory(w io.Writer, runs []model.DumpRun, loc *time.Location) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No dumps recorded.")
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]string, 0, len(runs))
	users := make([]float64, 0, len(runs))
	failed := 0
	for _, r := range runs {
		result := "ok"
		if !r.OK {
			failed++
			result = "failed"
			if r.Message != "" {
				result += ": " + r.Message
			}
		} else {
			users = append(users, float64(r.Users))
		}
		rows = append(rows, []string{
			r.StartedAt.In(loc).Format("2006-01-02 15:04:05"),
			string(r.Trigger),
			r.Format,
			strconv.Itoa(r.Users),
			r.Duration().Round(time.Millisecond).String(),
			r.Target,
			result,
		})
	}
	headers := []string{"Started", "Trigger", "Format", "Users", "Duration", "Target", "Result"}
	for _, line := range FormatTable(headers, rows, map[int]bool{3: true, 4: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "\nDumps: %d  Failed: %d\n", len(runs), failed); err != nil {
		return err
	}
	if len(users) > 1 {
		if _, err := fmt.Fprintf(w, "Users: %s\n", Sparkline(users)); err != nil {
			return err
		}
	}
	return nil
}

package view

import (
	"fmt"
	"io"
	"strings"
)

// WriteText renders a view as plain text for the terminal front end.
func WriteText(w io.Writer, v View) error {
	var b strings.Builder

	fmt.Fprintf(&b, "== %s ==\n", v.Heading)
	if v.Error != "" {
		fmt.Fprintf(&b, "! %s\n", v.Error)
	}
	if q := v.Question; q != nil && v.Feedback == nil {
		fmt.Fprintf(&b, "%s [%s]\n\n%s\n", v.Progress, q.Category, q.Text)
	}
	if f := v.Feedback; f != nil {
		fmt.Fprintf(&b, "%s %s: %d/100 (%s)\n", f.Emoji, f.ScoreLabel, f.Score, f.Performance)
		for _, m := range f.Breakdown {
			fmt.Fprintf(&b, "  %-18s %3d\n", m.Label, m.Value)
		}
		for _, c := range f.Comments {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if s := v.Summary; s != nil {
		fmt.Fprintf(&b, "%s: %d/100\n%s: %s\n%s\n", s.AverageLabel, s.AverageScore, s.GradeLabel, s.Grade, s.Message)
		fmt.Fprintf(&b, "%s: %s\n%s: %s\n", s.StrongLabel, s.StrongText, s.WeakLabel, s.WeakText)
		if s.Note != "" {
			fmt.Fprintf(&b, "(%s)\n", s.Note)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

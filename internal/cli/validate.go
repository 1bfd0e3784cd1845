package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/weft/pkg/markup"
)

// Validate loads path and reports every issue to out. It returns an error when
// the document is invalid.
func Validate(path string, out io.Writer) error {
	doc, err := markup.LoadFile(path)
	if err != nil {
		return err
	}
	if err := markup.Validate(doc); err != nil {
		var verr *markup.ValidationError
		if errors.As(err, &verr) {
			for _, is := range verr.Issues {
				fmt.Fprintf(out, "  %s\n", is)
			}
		}
		return err
	}
	fmt.Fprintf(out, "%s is valid: %d handler(s), %d control(s), %d variable(s)\n",
		path, len(doc.Handlers), len(doc.Controls), len(doc.Variables))
	return nil
}

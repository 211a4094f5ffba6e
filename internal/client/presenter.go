package client

import (
	"fmt"
	"io"

	"github.com/openclaw/deviceauth-go/internal/model"
)

// TextPresenter prints pairing instructions to a terminal.
type TextPresenter struct {
	out io.Writer
}

func NewTextPresenter(out io.Writer) *TextPresenter {
	return &TextPresenter{out: out}
}

func (p *TextPresenter) ShowPairing(start *model.PairingStart) {
	fmt.Fprintf(p.out, "\nTo sign in, open %s\nand enter the code:\n\n    %s\n\n", start.VerificationURL, start.PairingCode)
	if start.VerificationURLComplete != "" {
		fmt.Fprintf(p.out, "Or open this link directly: %s\n\n", start.VerificationURLComplete)
	}
	fmt.Fprintf(p.out, "Waiting for approval (code expires in %d minutes)...\n", (start.ExpiresIn+59)/60)
}

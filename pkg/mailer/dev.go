package mailer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/diagnosis/speakerhub/pkg/logger"
)

// DevSender prints emails instead of sending them.
type DevSender struct {
	out io.Writer
}

func NewDevSender() *DevSender {
	return &DevSender{out: os.Stdout}
}

func (d *DevSender) Send(ctx context.Context, msg Message) error {
	logger.InfoContext(ctx, "[DEV MAIL]", "to", msg.ToEmail, "subject", msg.Subject)

	fmt.Fprintf(d.out, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: %s\n"+
		"\n"+
		"%s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		msg.ToEmail, msg.ToName, msg.Subject, msg.Text)

	return nil
}

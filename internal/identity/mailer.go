// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"log/slog"

	"github.com/opentrusty/opentrusty/internal/observability/logger"
)

// Mailer is the narrow collaborator email delivery is reduced to (spec
// §1: "Email delivery (treated as an asynchronous Mailer.send(subject,
// body, recipient))"). The HTTP layer owns enqueueing a call to Send off
// the request goroutine; Mailer implementations are free to be
// synchronous themselves.
type Mailer interface {
	Send(ctx context.Context, subject, body, recipient string) error
}

// LogMailer is the development/test Mailer: it writes the message to the
// structured logger instead of delivering it, the way a local dev stack
// runs without a real SMTP/SES credential configured.
type LogMailer struct{}

// NewLogMailer builds a LogMailer.
func NewLogMailer() *LogMailer { return &LogMailer{} }

// Send logs the message at info level and never fails.
func (m *LogMailer) Send(ctx context.Context, subject, body, recipient string) error {
	slog.InfoContext(ctx, "mail dispatched",
		logger.Component("mailer"),
		logger.String("subject", subject),
		logger.Email(recipient),
	)
	return nil
}

// SendAsync enqueues mailer.Send on a background goroutine so the calling
// HTTP handler never blocks on mail delivery (spec §5: "email delivery
// (asynchronous, fire-and-forget via a background task queue)"). Errors
// are logged, not returned, since there is no caller left to return them
// to by the time Send completes.
func SendAsync(mailer Mailer, subject, body, recipient string) {
	go func() {
		if err := mailer.Send(context.Background(), subject, body, recipient); err != nil {
			slog.Error("failed to send mail", logger.Error(err), logger.Component("mailer"))
		}
	}()
}

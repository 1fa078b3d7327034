// SPDX-License-Identifier: MIT
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whisperer/internal/protocol"
)

// Explainer produces a plain language explanation for a diagnosis. It runs
// after the record is published; its text is attached late.
type Explainer interface {
	Explain(ctx context.Context, rec *protocol.DiagnosisRecord) (string, error)
}

// ExplainerFunc adapts a function to Explainer.
type ExplainerFunc func(ctx context.Context, rec *protocol.DiagnosisRecord) (string, error)

// Explain implements Explainer.
func (f ExplainerFunc) Explain(ctx context.Context, rec *protocol.DiagnosisRecord) (string, error) {
	return f(ctx, rec)
}

// componentHints are short notes on what a component's sound usually means.
var componentHints = map[string]string{
	"engine":       "Engine noises change with RPM; note whether the sound follows the throttle.",
	"brakes":       "Brake noises that appear only while braking usually come from pads or rotors.",
	"transmission": "Transmission noises that change with gear selection point to fluid or gear wear.",
	"exhaust":      "Exhaust noises are loudest at idle and on cold starts.",
}

// TemplateExplainer builds the explanation locally from the record fields.
type TemplateExplainer struct{}

// Explain implements Explainer.
func (TemplateExplainer) Explain(_ context.Context, rec *protocol.DiagnosisRecord) (string, error) {
	if rec == nil {
		return "", errors.New("no diagnosis to explain")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The %s sample matches %q with %.0f%% confidence. ",
		strings.ToLower(rec.Component), rec.Diagnosis, rec.ConfidenceScore*100)
	fmt.Fprintf(&sb, "Severity is %s; recommended timing: %s.", rec.Severity, strings.ToLower(rec.UrgencyLevel.Label()))
	if rec.EstimatedCost > 0 {
		fmt.Fprintf(&sb, " Estimated repair cost is about $%.0f.", rec.EstimatedCost)
	}
	if hint, ok := componentHints[strings.ToLower(rec.Component)]; ok {
		sb.WriteString(" ")
		sb.WriteString(hint)
	}
	return sb.String(), nil
}

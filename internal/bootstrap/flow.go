package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// GenericFailureMessage is shown when a failed submission carries no usable message.
const GenericFailureMessage = "Failed to create organization. Please try again."

// ErrSubmissionInFlight is returned when Submit is called while a previous
// submission on the same Flow has not finished.
var ErrSubmissionInFlight = errors.New("organization submission already in progress")

// Creator issues the create-organization request.
type Creator interface {
	CreateOrganization(ctx context.Context, name, slug string) (*apiclient.Organization, error)
}

// Flow submits the onboarding form for one session.
type Flow struct {
	creator  Creator
	store    *session.Store
	logger   *slog.Logger
	inFlight atomic.Bool
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithLogger sets the logger used by the flow.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// NewFlow returns a flow that creates organizations through creator and records
// them on store.
func NewFlow(creator Creator, store *session.Store, opts ...FlowOption) *Flow {
	f := &Flow{creator: creator, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Submit validates name and slug, creates the organization and attaches it to the
// session. Blank input fails with a validation error before any request is made.
// On failure the session is left unchanged.
func (f *Flow) Submit(ctx context.Context, name, slug string) (*session.Organization, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)

	if name == "" {
		telemetry.BootstrapSubmissionsTotal.WithLabelValues(apiclient.KindValidation.String()).Inc()
		return nil, apiclient.NewValidationError("Organization name is required")
	}
	if slug == "" {
		telemetry.BootstrapSubmissionsTotal.WithLabelValues(apiclient.KindValidation.String()).Inc()
		return nil, apiclient.NewValidationError("Organization slug is required")
	}

	if !f.inFlight.CompareAndSwap(false, true) {
		telemetry.BootstrapSubmissionsTotal.WithLabelValues("in_flight").Inc()
		return nil, ErrSubmissionInFlight
	}
	defer f.inFlight.Store(false)

	created, err := f.creator.CreateOrganization(ctx, name, slug)
	if err != nil {
		telemetry.BootstrapSubmissionsTotal.WithLabelValues(apiclient.KindOf(err).String()).Inc()
		f.logger.Info("organization creation failed", "slug", slug, "error", err)
		return nil, err
	}

	org := session.Organization{
		ID:      created.ID,
		Name:    created.Name,
		Slug:    created.Slug,
		LogoURL: created.LogoURL,
	}
	if err := f.store.SetOrganization(org); err != nil {
		// The organization exists; the gate will route the caller through login again.
		f.logger.Warn("organization created for a session that is no longer authenticated",
			"org_id", org.ID, "error", err)
	}
	telemetry.BootstrapSubmissionsTotal.WithLabelValues("success").Inc()
	return &org, nil
}

// InFlight reports whether a submission is outstanding.
func (f *Flow) InFlight() bool {
	return f.inFlight.Load()
}

// FailureMessage returns the text to show for a failed submission: the backend's
// message when it sent one, otherwise GenericFailureMessage.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSubmissionInFlight) {
		return "Your organization is already being created."
	}
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || strings.TrimSpace(apiErr.Message) == "" {
		return GenericFailureMessage
	}
	// Local validation errors and error responses carry user-facing text, 5xx
	// included. Network and decoding failures carry client text.
	if apiErr.Kind == apiclient.KindValidation || apiErr.StatusCode >= 300 {
		return apiErr.Message
	}
	return GenericFailureMessage
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
)

// Target holds a fully resolved notification target ready to send.
type Target struct {
	ServiceName string
	URL         string
	Message     string
	Params      map[string]string
}

// NotifyRef is a notify target reference used by ResolveTargets.
type NotifyRef struct {
	ServiceName string
	Template    string
	Params      map[string]string
	Always      bool // also notify passed runs
}

// ServiceDef is a service definition used by ResolveTargets.
type ServiceDef struct {
	URL    string
	Params map[string]string
}

// ResolveTargets builds the list of notification targets for a finished
// run. Refs that only notify on failure are skipped for a passed run. The
// message template and param value templates are rendered per target.
func ResolveTargets(
	notifyList []NotifyRef,
	services map[string]ServiceDef,
	successful bool,
	data TemplateData,
) ([]Target, error) {
	var targets []Target

	for _, ref := range notifyList {
		if successful && !ref.Always {
			continue
		}
		svc, ok := services[ref.ServiceName]
		if !ok {
			return nil, fmt.Errorf("unknown service %q", ref.ServiceName)
		}

		tmplStr := DefaultTemplate
		if ref.Template != "" {
			tmplStr = ref.Template
		}

		msg, err := Render(tmplStr, data)
		if err != nil {
			return nil, fmt.Errorf("rendering template for %s: %w", ref.ServiceName, err)
		}

		// service params, overridden per target
		merged := make(map[string]string, len(svc.Params)+len(ref.Params))
		maps.Copy(merged, svc.Params)
		maps.Copy(merged, ref.Params)

		for k, v := range merged {
			rendered, err := Render(v, data)
			if err != nil {
				return nil, fmt.Errorf("rendering param %q for %s: %w", k, ref.ServiceName, err)
			}
			merged[k] = rendered
		}

		targets = append(targets, Target{
			ServiceName: ref.ServiceName,
			URL:         svc.URL,
			Message:     msg,
			Params:      merged,
		})
	}

	return targets, nil
}

// Check verifies that a sender can be built for the target URL without
// sending anything.
func Check(t Target) error {
	_, err := sender(t)
	return err
}

// Send delivers a notification to a single target via Shoutrrr.
func Send(t Target) error {
	s, err := sender(t)
	if err != nil {
		return err
	}

	errs := s.Send(t.Message, nil)
	for _, e := range errs {
		if e != nil {
			return fmt.Errorf("sending to %s: %w", t.ServiceName, e)
		}
	}

	return nil
}

func sender(t Target) (*router.ServiceRouter, error) {
	raw, err := applyParams(t.URL, t.Params)
	if err != nil {
		return nil, fmt.Errorf("building url for %s: %w", t.ServiceName, err)
	}
	s, err := shoutrrr.CreateSender(raw)
	if err != nil {
		return nil, fmt.Errorf("creating sender for %s: %w", t.ServiceName, err)
	}
	return s, nil
}

// applyParams merges params into the query of a service URL.
func applyParams(raw string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dispatch sends to every target, or only checks them when dryRun is set.
// It stops at ctx cancellation and returns the names notified.
func Dispatch(ctx context.Context, targets []Target, dryRun bool, logger *slog.Logger) ([]string, error) {
	var notified []string
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return notified, err
		}
		log := logger.With("service", t.ServiceName)
		if dryRun {
			if err := Check(t); err != nil {
				return notified, err
			}
			log.Info("would notify", "message", t.Message)
			notified = append(notified, t.ServiceName)
			continue
		}
		if err := Send(t); err != nil {
			return notified, err
		}
		log.Info("notified")
		notified = append(notified, t.ServiceName)
	}
	return notified, nil
}

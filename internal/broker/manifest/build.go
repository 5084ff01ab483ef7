package manifest

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/eventbroker/internal/broker"
	"github.com/dshills/eventbroker/internal/broker/handler"
	"github.com/dshills/eventbroker/internal/broker/matcher"
)

// namedMatchers are the matchers selectable by name.
var namedMatchers = map[string]func() matcher.Matcher{
	"always":                matcher.AlwaysTrue,
	"not-already-canceled":  matcher.NotAlreadyCanceled,
	"publish-to-children":   matcher.PublishToChildren,
	"publish-to-parents":    matcher.PublishToParents,
	"publish-global":        matcher.PublishGlobal,
	"subscribe-to-children": matcher.SubscribeToChildren,
	"subscribe-to-parents":  matcher.SubscribeToParents,
	"subscribe-global":      matcher.SubscribeGlobal,
}

// Build returns the selected matcher.
func (s MatcherSpec) Build() (matcher.Matcher, error) {
	set := 0
	for _, v := range []string{s.Name, s.Script, s.Field} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("matcher needs exactly one of name, script, field")
	}
	if s.Timeout != "" && s.Script == "" {
		return nil, errors.New("timeout applies to script matchers only")
	}

	switch {
	case s.Name != "":
		build, ok := namedMatchers[s.Name]
		if !ok {
			return nil, fmt.Errorf("unknown matcher %q", s.Name)
		}
		return build(), nil
	case s.Script != "":
		if s.Timeout == "" {
			return matcher.Script(s.Script)
		}
		d, err := time.ParseDuration(s.Timeout)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid script timeout %q", s.Timeout)
		}
		return matcher.Script(s.Script, matcher.WithScriptTimeout(d))
	default:
		if s.Exists {
			if s.Equals != "" {
				return nil, errors.New("field matcher takes equals or exists, not both")
			}
			return matcher.FieldExists(s.Field), nil
		}
		return matcher.Field(s.Field, s.Equals), nil
	}
}

func buildMatchers(specs []MatcherSpec) ([]matcher.Matcher, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	ms := make([]matcher.Matcher, 0, len(specs))
	for _, spec := range specs {
		m, err := spec.Build()
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func restrictionOf(name string) (broker.HandlerRestriction, error) {
	switch name {
	case "", broker.Unrestricted.String():
		return broker.Unrestricted, nil
	case broker.SynchronousOnly.String():
		return broker.SynchronousOnly, nil
	default:
		return 0, fmt.Errorf("unknown restriction %q", name)
	}
}

func knownHandler(name string) bool {
	switch name {
	case "", "inline", "background", "ui", "ui-async", "pool":
		return true
	}
	return false
}

// newHandler creates the handler named by a subscription entry. Every entry
// gets its own handler value, so a background entry owns one worker shared
// by all instances registered through it.
func newHandler(name string, background []handler.PoolOption) (handler.Handler, error) {
	switch name {
	case "", "inline":
		return handler.OnPublisher(), nil
	case "background":
		return handler.OnBackground(background...), nil
	case "ui":
		return handler.OnUserInterface(), nil
	case "ui-async":
		return handler.OnUserInterfaceAsync(), nil
	case "pool":
		return handler.FireAndForget(), nil
	default:
		return nil, fmt.Errorf("unknown handler %q", name)
	}
}

package invoker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/stepwise/packages/core/classifier"
	"github.com/abdul-hamid-achik/stepwise/packages/core/result"
)

// Invoker calls bindings and classifies what they return.
type Invoker struct {
	registry   *Registry
	resolver   Resolver
	classifier *classifier.Classifier
	logger     *zap.Logger
}

type Option func(*Invoker)

// WithResolver sets how binding owners are turned into instances. By default every owner
// resolves to nil.
func WithResolver(r Resolver) Option {
	return func(i *Invoker) {
		i.resolver = r
	}
}

func WithClassifier(c *classifier.Classifier) Option {
	return func(i *Invoker) {
		i.classifier = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		i.logger = l
	}
}

func New(registry *Registry, opts ...Option) *Invoker {
	if registry == nil {
		registry = NewRegistry()
	}
	i := &Invoker{
		registry:   registry,
		resolver:   ResolverFunc(func(string) (any, error) { return nil, nil }),
		classifier: classifier.Default(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Invoker) Registry() *Registry {
	return i.registry
}

// Invoke looks the binding up by ID and calls it. An unknown ID is UNDEFINED.
func (i *Invoker) Invoke(ctx context.Context, id string) *result.Outcome {
	b, err := i.registry.Lookup(id)
	if err != nil {
		i.logger.Warn("missing step binding", zap.String("binding", id))
		return &result.Outcome{
			Status:  result.Undefined,
			Message: fmt.Sprintf("no binding registered for %q", id),
			Started: time.Now(),
			Err:     err,
		}
	}
	return i.Call(ctx, b)
}

// Call resolves the owner instance and calls the binding. It never panics.
func (i *Invoker) Call(ctx context.Context, b *Binding) *result.Outcome {
	start := time.Now()

	instance, err := i.resolver.ResolveInstance(b.Owner)
	if err != nil {
		i.logger.Warn("cannot resolve binding owner",
			zap.String("binding", b.ID),
			zap.String("owner", b.Owner),
			zap.Error(err))
		return &result.Outcome{
			Status:   result.Undefined,
			Message:  fmt.Sprintf("cannot resolve %q for %q: %v", b.Owner, b.ID, err),
			Started:  start,
			Duration: time.Since(start),
			Err:      err,
		}
	}

	err = call(ctx, b, instance)
	if err != nil && i.classifier.Policy().StackTraces && classifier.StackTrace(err) == "" {
		err = pkgerrors.WithStack(err)
	}

	outcome := i.classifier.Classify(err)
	outcome.Started = start
	outcome.Duration = time.Since(start)

	switch outcome.Status {
	case result.Passed:
	case result.Failed:
		i.logger.Error("step failed",
			zap.String("binding", b.ID),
			zap.String("name", b.Name),
			zap.String("message", outcome.Message))
		if outcome.HasStackTrace {
			i.logger.Debug("stack trace", zap.String("binding", b.ID), zap.String("trace", outcome.StackTrace))
		}
	default:
		i.logger.Debug("step not completed",
			zap.String("binding", b.ID),
			zap.Stringer("status", outcome.Status),
			zap.String("message", outcome.Message))
	}
	return outcome
}

func call(ctx context.Context, b *Binding, instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &classifier.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return b.Func(ctx, instance, b.Args)
}

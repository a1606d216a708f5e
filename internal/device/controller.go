package device

import (
	"context"
	"fmt"
)

// CommandPublisher delivers a command patch to the device's controller node.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, topicBase string, patch State) error
}

// Controller turns user, schedule and scene intents into device commands.
//
// A command is published first and merged into stored state only once the
// publish succeeds, so a failed publish leaves state untouched.
type Controller struct {
	reconciler *Reconciler
	publisher  CommandPublisher
	logger     Logger
}

// NewController creates a controller that writes through reconciler.
func NewController(reconciler *Reconciler, publisher CommandPublisher) *Controller {
	return &Controller{
		reconciler: reconciler,
		publisher:  publisher,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Command publishes patch to the device and, on success, merges it into the
// stored state. Publish failures are returned wrapped in ErrCommandFailed.
func (c *Controller) Command(ctx context.Context, id string, patch State) (*Device, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: command is empty", ErrInvalidState)
	}
	if err := ValidateState(patch); err != nil {
		return nil, err
	}

	return c.reconciler.Update(ctx, id, func(current *Device) (State, error) {
		return patch, c.publish(ctx, current, patch)
	})
}

// Toggle flips the device's "on" key. A device whose state has no boolean
// "on" is treated as off and is switched on.
func (c *Controller) Toggle(ctx context.Context, id string) (*Device, error) {
	return c.reconciler.Update(ctx, id, func(current *Device) (State, error) {
		patch := State{"on": !current.State.IsOn()}
		return patch, c.publish(ctx, current, patch)
	})
}

func (c *Controller) publish(ctx context.Context, d *Device, patch State) error {
	if err := c.publisher.PublishCommand(ctx, d.TopicBase, patch); err != nil {
		c.logger.Warn("device command failed", "device_id", d.ID, "topic_base", d.TopicBase, "error", err)
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	c.logger.Debug("device command sent", "device_id", d.ID, "topic_base", d.TopicBase)
	return nil
}

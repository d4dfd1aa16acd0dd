package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hay-kot/mqchat/internal/core/transport"
)

// BrokerCheck connects to the broker once with a throwaway client identity.
type BrokerCheck struct {
	broker  string
	factory transport.Factory
	timeout time.Duration
}

// NewBrokerCheck creates a check that dials broker through factory.
func NewBrokerCheck(broker string, factory transport.Factory, timeout time.Duration) *BrokerCheck {
	return &BrokerCheck{
		broker:  broker,
		factory: factory,
		timeout: timeout,
	}
}

func (c *BrokerCheck) Name() string {
	return "Broker"
}

func (c *BrokerCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	t, err := c.factory("mqchat-doctor-" + uuid.NewString())
	if err != nil {
		result.add(c.broker, StatusFail, err.Error())
		return result
	}
	defer func() { _ = t.Close() }()

	start := time.Now()
	err = t.Connect(ctx, transport.Options{CleanSession: true, Timeout: c.timeout})
	if err != nil {
		result.add(c.broker, StatusFail, err.Error())
		return result
	}
	elapsed := time.Since(start)
	t.Disconnect()

	result.add(c.broker, StatusPass, fmt.Sprintf("connected in %s", elapsed.Round(time.Millisecond)))
	return result
}

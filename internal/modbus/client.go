package modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// Client reads register blocks from the inverter's VSN300 card over Modbus
// TCP. Each read opens its own connection and closes it before returning: the
// card drops idle sessions, so holding one across poll intervals just trades
// a connect for a guaranteed reconnect.
type Client struct {
	host    string
	port    int
	unitID  uint8
	timeout time.Duration
}

func NewClient(host string, port int, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		host:    host,
		port:    port,
		unitID:  unitID,
		timeout: timeout,
	}
}

// ReadHoldingBlock reads quantity consecutive holding registers starting at
// address over a fresh connection.
func (c *Client) ReadHoldingBlock(address uint16, quantity uint16) ([]uint16, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", c.host, c.port),
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("failed to connect to inverter: %w", err)
	}
	defer client.Close()

	client.SetUnitId(c.unitID)

	regs, err := client.ReadRegisters(address, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read holding registers at %d: %w", address, err)
	}

	return regs, nil
}

package rtc

import (
	pion "github.com/pion/webrtc/v4"
)

// DataChannel adapts a pion data channel to the raw channel the message
// protocol writes to.
type DataChannel struct {
	dc *pion.DataChannel
}

func NewDataChannel(dc *pion.DataChannel) *DataChannel {
	return &DataChannel{dc: dc}
}

func (c *DataChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *DataChannel) SendText(text string) error {
	return c.dc.SendText(text)
}

func (c *DataChannel) BufferedAmount() uint64 {
	return c.dc.BufferedAmount()
}

func (c *DataChannel) Ready() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *DataChannel) Label() string {
	return c.dc.Label()
}

func (c *DataChannel) Close() error {
	return c.dc.Close()
}

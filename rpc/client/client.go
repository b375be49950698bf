package client

import (
	"context"
	"fmt"
	"net"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/engine"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// Client offers typed calls of the coprocessor interface on top of an engine.
// The engine must be initialized by the caller.
type Client struct {
	engine *engine.Engine
}

// New creates a client for e
func New(e *engine.Engine) *Client {
	return &Client{engine: e}
}

// Engine returns the engine used by the client
func (c *Client) Engine() *engine.Engine {
	return c.engine
}

// --------------------------------------------------------------------------
// Synchronous calls
// --------------------------------------------------------------------------

// GetMACAddress returns the MAC address of the interface used in mode (sta or ap)
func (c *Client) GetMACAddress(ctx context.Context, mode common.WifiMode) (net.HardwareAddr, error) {
	payload, err := c.invoke(ctx, common.KindGetMACAddress, common.WifiModePayload{Mode: mode}.Marshal())
	if err != nil {
		return nil, err
	}
	return decodeMAC(payload)
}

// SetMACAddress changes the MAC address of the interface used in mode
func (c *Client) SetMACAddress(ctx context.Context, mode common.WifiMode, mac net.HardwareAddr) error {
	if len(mac) != 6 {
		return fmt.Errorf("invalid mac length %d", len(mac))
	}
	_, err := c.invoke(ctx, common.KindSetMACAddress, common.MACPayload{Mode: mode, MAC: mac}.Marshal())
	return err
}

// GetWifiMode returns the current Wi-Fi mode
func (c *Client) GetWifiMode(ctx context.Context) (common.WifiMode, error) {
	payload, err := c.invoke(ctx, common.KindGetWifiMode, nil)
	if err != nil {
		return common.WifiModeNull, err
	}
	var p common.WifiModePayload
	if err := p.Unmarshal(payload); err != nil {
		return common.WifiModeNull, fmt.Errorf("failed to decode wifi mode: %w", err)
	}
	return p.Mode, nil
}

// SetWifiMode changes the Wi-Fi mode
func (c *Client) SetWifiMode(ctx context.Context, mode common.WifiMode) error {
	_, err := c.invoke(ctx, common.KindSetWifiMode, common.WifiModePayload{Mode: mode}.Marshal())
	return err
}

// SetPowerSave sets the power save type (0 none, 1 min modem, 2 max modem)
func (c *Client) SetPowerSave(ctx context.Context, psType uint32) error {
	_, err := c.invoke(ctx, common.KindWifiSetPs, common.PowerSavePayload{Type: psType}.Marshal())
	return err
}

// GetPowerSave returns the power save type
func (c *Client) GetPowerSave(ctx context.Context) (uint32, error) {
	payload, err := c.invoke(ctx, common.KindWifiGetPs, nil)
	if err != nil {
		return 0, err
	}
	var p common.PowerSavePayload
	if err := p.Unmarshal(payload); err != nil {
		return 0, fmt.Errorf("failed to decode power save type: %w", err)
	}
	return p.Type, nil
}

// GetFirmwareVersion returns the coprocessor firmware version
func (c *Client) GetFirmwareVersion(ctx context.Context) (common.FwVersionPayload, error) {
	payload, err := c.invoke(ctx, common.KindGetCoprocessorFwVersion, nil)
	if err != nil {
		return common.FwVersionPayload{}, err
	}
	var p common.FwVersionPayload
	if err := p.Unmarshal(payload); err != nil {
		return common.FwVersionPayload{}, fmt.Errorf("failed to decode firmware version: %w", err)
	}
	return p, nil
}

// ConfigHeartbeat enables heartbeat events every intervalSec seconds or disables them
func (c *Client) ConfigHeartbeat(ctx context.Context, enable bool, intervalSec uint32) error {
	_, err := c.invoke(ctx, common.KindConfigHeartbeat, common.HeartbeatConfigPayload{Enable: enable, DurationSec: intervalSec}.Marshal())
	return err
}

// WifiStart starts the radio
func (c *Client) WifiStart(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiStart, nil)
	return err
}

// WifiStop stops the radio
func (c *Client) WifiStop(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiStop, nil)
	return err
}

// WifiInit loads the radio driver after WifiDeinit
func (c *Client) WifiInit(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiInit, nil)
	return err
}

// WifiDeinit stops the radio and unloads its driver
func (c *Client) WifiDeinit(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiDeinit, nil)
	return err
}

// WifiConnect connects the station to the configured access point. The
// outcome arrives as a staConnected event.
func (c *Client) WifiConnect(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiConnect, nil)
	return err
}

// WifiDisconnect disconnects the station
func (c *Client) WifiDisconnect(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiDisconnect, nil)
	return err
}

// WifiScanStart starts a scan, completion is reported by a staScanDone event
func (c *Client) WifiScanStart(ctx context.Context) error {
	_, err := c.invoke(ctx, common.KindWifiScanStart, nil)
	return err
}

// SetMaxTxPower limits the transmit power, in units of 0.25 dBm
func (c *Client) SetMaxTxPower(ctx context.Context, power int32) error {
	_, err := c.invoke(ctx, common.KindWifiSetMaxTxPower, common.TxPowerPayload{Power: power}.Marshal())
	return err
}

// GetMaxTxPower returns the transmit power limit, in units of 0.25 dBm
func (c *Client) GetMaxTxPower(ctx context.Context) (int32, error) {
	payload, err := c.invoke(ctx, common.KindWifiGetMaxTxPower, nil)
	if err != nil {
		return 0, err
	}
	var p common.TxPowerPayload
	if err := p.Unmarshal(payload); err != nil {
		return 0, fmt.Errorf("failed to decode tx power: %w", err)
	}
	return p.Power, nil
}

// --------------------------------------------------------------------------
// Asynchronous calls
// --------------------------------------------------------------------------

// GetMACAddressAsync requests the MAC address of mode and returns immediately.
// cb runs exactly once, on an engine goroutine.
func (c *Client) GetMACAddressAsync(mode common.WifiMode, cb func(mac net.HardwareAddr, err error)) error {
	req := common.Request{Kind: common.KindGetMACAddress, Payload: common.WifiModePayload{Mode: mode}.Marshal()}
	return c.engine.SubmitAsync(req, func(resp common.Response) {
		if err := resp.Err(); err != nil {
			cb(nil, err)
			return
		}
		cb(decodeMAC(resp.Payload))
	})
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// OnHeartbeat calls cb with the counter of every heartbeat event
func (c *Client) OnHeartbeat(cb func(beat uint32)) error {
	return c.engine.SubscribeEvent(common.EventHeartbeat, func(evt common.Event) {
		var hb common.HeartbeatPayload
		if err := hb.Unmarshal(evt.Payload); err != nil {
			Logger.Warningf("Dropping heartbeat with invalid payload: %v", err)
			return
		}
		cb(hb.Beat)
	})
}

// OnEvent calls cb for every event of kind, replacing an earlier subscription
func (c *Client) OnEvent(kind common.EventKind, cb common.EventCallback) error {
	return c.engine.SubscribeEvent(kind, cb)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// invoke runs a synchronous request and turns every non OK outcome into an error
func (c *Client) invoke(ctx context.Context, kind common.MessageKind, payload []byte) ([]byte, error) {
	resp, err := c.engine.SubmitSync(ctx, common.Request{Kind: kind, Payload: payload})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		Logger.Debugf("%s request uid=%d failed: %v", kind, resp.UID, err)
		return nil, err
	}
	return resp.Payload, nil
}

func decodeMAC(payload []byte) (net.HardwareAddr, error) {
	var p common.MACPayload
	if err := p.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("failed to decode mac address: %w", err)
	}
	return p.MAC, nil
}

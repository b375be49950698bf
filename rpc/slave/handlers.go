package slave

import (
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// Error codes of the coprocessor firmware used by the built-in handlers
const (
	StatusInvalidArg     common.StatusCode = 0x102
	StatusWifiNotInit    common.StatusCode = 0x3001
	StatusWifiNotStarted common.StatusCode = 0x3002
)

// Accepted range of the maximum transmit power, in units of 0.25 dBm
const (
	MinTxPower int32 = 8
	MaxTxPower int32 = 84
)

// device is the radio state shared by all sessions
type device struct {
	mu      sync.Mutex
	mode    common.WifiMode
	staMAC  net.HardwareAddr
	apMAC   net.HardwareAddr
	psType  uint32
	txPower int32
	// the radio driver is loaded at boot, wifiDeinit unloads it
	initialized bool
	started     bool
}

func newDevice() *device {
	return &device{
		mode:   common.WifiModeSTA,
		staMAC: net.HardwareAddr{0x24, 0x0a, 0xc4, 0x00, 0x00, 0x01},
		apMAC:  net.HardwareAddr{0x24, 0x0a, 0xc4, 0x00, 0x00, 0x02},
		psType:      1,
		txPower:     80,
		initialized: true,
	}
}

// mac returns the address slot of mode, nil for modes without an own interface
func (d *device) mac(mode common.WifiMode) *net.HardwareAddr {
	switch mode {
	case common.WifiModeSTA:
		return &d.staMAC
	case common.WifiModeAP:
		return &d.apMAC
	default:
		return nil
	}
}

// registerBuiltins installs the handlers of the simulated firmware
func (s *Slave) registerBuiltins() {
	s.Handle(common.KindGetMACAddress, s.getMACAddress)
	s.Handle(common.KindSetMACAddress, s.setMACAddress)
	s.Handle(common.KindGetWifiMode, s.getWifiMode)
	s.Handle(common.KindSetWifiMode, s.setWifiMode)
	s.Handle(common.KindWifiGetPs, s.getPowerSave)
	s.Handle(common.KindWifiSetPs, s.setPowerSave)
	s.Handle(common.KindGetCoprocessorFwVersion, s.getFwVersion)
	s.Handle(common.KindConfigHeartbeat, s.configHeartbeat)
	s.Handle(common.KindWifiStart, s.wifiStart)
	s.Handle(common.KindWifiStop, s.wifiStop)
	s.Handle(common.KindWifiInit, s.wifiInit)
	s.Handle(common.KindWifiDeinit, s.wifiDeinit)
	s.Handle(common.KindWifiConnect, s.wifiConnect)
	s.Handle(common.KindWifiDisconnect, s.wifiDisconnect)
	s.Handle(common.KindWifiScanStart, s.wifiScanStart)
	s.Handle(common.KindWifiSetMaxTxPower, s.setMaxTxPower)
	s.Handle(common.KindWifiGetMaxTxPower, s.getMaxTxPower)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Slave) getMACAddress(call *Call) (common.StatusCode, []byte) {
	var req common.WifiModePayload
	if err := req.Unmarshal(call.Payload); err != nil {
		return StatusInvalidArg, nil
	}

	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	mac := s.device.mac(req.Mode)
	if mac == nil {
		return StatusInvalidArg, nil
	}
	return common.StatusOK, common.MACPayload{Mode: req.Mode, MAC: *mac}.Marshal()
}

func (s *Slave) setMACAddress(call *Call) (common.StatusCode, []byte) {
	var req common.MACPayload
	if err := req.Unmarshal(call.Payload); err != nil || len(req.MAC) == 0 {
		return StatusInvalidArg, nil
	}
	// multicast addresses cannot be assigned to an interface
	if req.MAC[0]&0x01 != 0 {
		return StatusInvalidArg, nil
	}

	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	mac := s.device.mac(req.Mode)
	if mac == nil {
		return StatusInvalidArg, nil
	}
	*mac = append(net.HardwareAddr(nil), req.MAC...)
	Logger.Infof("Set %s MAC address to %s", req.Mode, req.MAC)
	return common.StatusOK, nil
}

func (s *Slave) getWifiMode(*Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	return common.StatusOK, common.WifiModePayload{Mode: s.device.mode}.Marshal()
}

func (s *Slave) setWifiMode(call *Call) (common.StatusCode, []byte) {
	var req common.WifiModePayload
	if err := req.Unmarshal(call.Payload); err != nil || req.Mode > common.WifiModeAPSTA {
		return StatusInvalidArg, nil
	}

	s.device.mu.Lock()
	s.device.mode = req.Mode
	s.device.mu.Unlock()

	Logger.Infof("Set wifi mode to %s", req.Mode)
	return common.StatusOK, nil
}

func (s *Slave) getPowerSave(*Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	return common.StatusOK, common.PowerSavePayload{Type: s.device.psType}.Marshal()
}

func (s *Slave) setPowerSave(call *Call) (common.StatusCode, []byte) {
	var req common.PowerSavePayload
	if err := req.Unmarshal(call.Payload); err != nil || req.Type > 2 {
		return StatusInvalidArg, nil
	}

	s.device.mu.Lock()
	s.device.psType = req.Type
	s.device.mu.Unlock()
	return common.StatusOK, nil
}

func (s *Slave) getFwVersion(*Call) (common.StatusCode, []byte) {
	return common.StatusOK, s.config.FwVersion.Marshal()
}

func (s *Slave) configHeartbeat(call *Call) (common.StatusCode, []byte) {
	var req common.HeartbeatConfigPayload
	if err := req.Unmarshal(call.Payload); err != nil {
		return StatusInvalidArg, nil
	}

	if !req.Enable {
		call.Session.stopHeartbeat()
		Logger.Infof("Heartbeat disabled")
		return common.StatusOK, nil
	}
	if req.DurationSec == 0 {
		return StatusInvalidArg, nil
	}
	call.Session.startHeartbeat(time.Duration(req.DurationSec) * time.Second)
	return common.StatusOK, nil
}

func (s *Slave) wifiStart(call *Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	if !s.device.initialized {
		s.device.mu.Unlock()
		return StatusWifiNotInit, nil
	}
	s.device.started = true
	s.device.mu.Unlock()

	call.EmitAfterReply(common.EventStaConnected, nil)
	return common.StatusOK, nil
}

func (s *Slave) wifiStop(call *Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	started := s.device.started
	s.device.started = false
	s.device.mu.Unlock()

	if !started {
		return StatusWifiNotStarted, nil
	}
	call.EmitAfterReply(common.EventStaDisconnected, nil)
	return common.StatusOK, nil
}

func (s *Slave) wifiInit(*Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	s.device.initialized = true
	s.device.mu.Unlock()
	return common.StatusOK, nil
}

func (s *Slave) wifiDeinit(*Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	if !s.device.initialized {
		return StatusWifiNotInit, nil
	}
	s.device.initialized = false
	s.device.started = false
	Logger.Infof("Wifi deinitialized")
	return common.StatusOK, nil
}

func (s *Slave) wifiConnect(call *Call) (common.StatusCode, []byte) {
	return s.whenStarted(call, common.EventStaConnected)
}

func (s *Slave) wifiDisconnect(call *Call) (common.StatusCode, []byte) {
	return s.whenStarted(call, common.EventStaDisconnected)
}

func (s *Slave) wifiScanStart(call *Call) (common.StatusCode, []byte) {
	return s.whenStarted(call, common.EventStaScanDone)
}

func (s *Slave) setMaxTxPower(call *Call) (common.StatusCode, []byte) {
	var req common.TxPowerPayload
	if err := req.Unmarshal(call.Payload); err != nil || req.Power < MinTxPower || req.Power > MaxTxPower {
		return StatusInvalidArg, nil
	}

	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	if !s.device.started {
		return StatusWifiNotStarted, nil
	}
	s.device.txPower = req.Power
	return common.StatusOK, nil
}

func (s *Slave) getMaxTxPower(*Call) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()

	if !s.device.started {
		return StatusWifiNotStarted, nil
	}
	return common.StatusOK, common.TxPowerPayload{Power: s.device.txPower}.Marshal()
}

// whenStarted answers OK and queues evt if the radio runs, StatusWifiNotStarted otherwise
func (s *Slave) whenStarted(call *Call, evt common.EventKind) (common.StatusCode, []byte) {
	s.device.mu.Lock()
	started := s.device.started
	s.device.mu.Unlock()

	if !started {
		return StatusWifiNotStarted, nil
	}
	call.EmitAfterReply(evt, nil)
	return common.StatusOK, nil
}

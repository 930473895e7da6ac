package wasm

import "fmt"

// hostPrint implements slot 0 (print): args are (ptr, len) into linear
// memory. It logs the referenced UTF-8 bytes through the instance's
// logger, matching wasm_interpreter.rs's host_print.
func hostPrint(inst *Instance, args []Value) (*Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("wasm: host_print expects 2 args, got %d", len(args))
	}
	ptr, length := uint32(args[0].I32), uint32(args[1].I32)
	msg := make([]byte, 0, length)
	for i := uint32(0); i < length; i++ {
		b, ok := inst.Memory.ReadU8(ptr + i)
		if !ok {
			return nil, errAbort("host_print: memory access out of bounds")
		}
		msg = append(msg, b)
	}
	inst.logger.Info("wasm print", "message", string(msg))
	return nil, nil
}

// hostGetTimestamp implements slot 1: writes a monotonic tick count at the
// given address and returns it, matching the original's single-arg
// (addr) signature. now is supplied by the caller through
// HostBindings.Now rather than read from the wall clock directly,
// keeping the interpreter itself deterministic.
func hostGetTimestamp(now func() uint64) HostFunction {
	return func(inst *Instance, args []Value) (*Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("wasm: host_get_timestamp expects 1 arg, got %d", len(args))
		}
		addr := uint32(args[0].I32)
		ts := now()
		if !inst.Memory.WriteI64(addr, int64(ts)) {
			return nil, errAbort("host_get_timestamp: memory access out of bounds")
		}
		v := I64(int64(ts))
		return &v, nil
	}
}

// GPIOReader/GPIOWriter/UARTPort/SensorReader are the hardware-facing
// capabilities Bind registers. Callers of Bind supply them; the device
// agent (internal/device) does not call Bind, so a module it runs has no
// host slot registered and any host import it calls aborts with "host
// function not registered".
type GPIOReader func(pin uint32) (bool, error)
type GPIOWriter func(pin uint32, high bool) error
type UARTPort interface {
	Send(data []byte) (int, error)
	Receive(buf []byte) (int, error)
}
type SensorReader func(channel uint32) (int32, error)

// HostBindings collects the hardware capabilities exposed to a module via
// the 7 fixed import slots (spec.md §4.4.6). Fields left nil cause the
// corresponding WASM import to abort with "host function not registered"
// if the module calls it, the same way the reference firmware leaves an
// unregistered slot as None.
type HostBindings struct {
	Now    func() uint64
	GPIO   GPIOReader
	GPIOW  GPIOWriter
	UART   UARTPort
	Sensor SensorReader
}

// Bind registers every non-nil capability in b against inst's 7 host
// slots.
func Bind(inst *Instance, b HostBindings) {
	inst.RegisterHost(HostPrint, hostPrint)
	if b.Now != nil {
		inst.RegisterHost(HostGetTimestamp, hostGetTimestamp(b.Now))
	}
	if b.GPIO != nil {
		inst.RegisterHost(HostGPIORead, func(_ *Instance, args []Value) (*Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("wasm: host_gpio_read expects 1 arg, got %d", len(args))
			}
			high, err := b.GPIO(uint32(args[0].I32))
			if err != nil {
				return nil, err
			}
			v := boolI32(high)
			return &v, nil
		})
	}
	if b.GPIOW != nil {
		inst.RegisterHost(HostGPIOWrite, func(_ *Instance, args []Value) (*Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("wasm: host_gpio_write expects 2 args, got %d", len(args))
			}
			return nil, b.GPIOW(uint32(args[0].I32), !args[1].IsZero())
		})
	}
	if b.UART != nil {
		inst.RegisterHost(HostUARTSend, func(i *Instance, args []Value) (*Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("wasm: host_uart_send expects 2 args, got %d", len(args))
			}
			ptr, length := uint32(args[0].I32), uint32(args[1].I32)
			data := make([]byte, length)
			for j := uint32(0); j < length; j++ {
				b2, ok := i.Memory.ReadU8(ptr + j)
				if !ok {
					return nil, errAbort("host_uart_send: memory access out of bounds")
				}
				data[j] = b2
			}
			n, err := b.UART.Send(data)
			if err != nil {
				return nil, err
			}
			v := I32(int32(n))
			return &v, nil
		})
		inst.RegisterHost(HostUARTReceive, func(i *Instance, args []Value) (*Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("wasm: host_uart_receive expects 2 args, got %d", len(args))
			}
			ptr, maxLen := uint32(args[0].I32), uint32(args[1].I32)
			buf := make([]byte, maxLen)
			n, err := b.UART.Receive(buf)
			if err != nil {
				return nil, err
			}
			for j := 0; j < n; j++ {
				if !i.Memory.WriteU8(ptr+uint32(j), buf[j]) {
					return nil, errAbort("host_uart_receive: memory access out of bounds")
				}
			}
			v := I32(int32(n))
			return &v, nil
		})
	}
	if b.Sensor != nil {
		inst.RegisterHost(HostSensorRead, func(_ *Instance, args []Value) (*Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("wasm: host_sensor_read expects 1 arg, got %d", len(args))
			}
			reading, err := b.Sensor(uint32(args[0].I32))
			if err != nil {
				return nil, err
			}
			v := I32(reading)
			return &v, nil
		})
	}
}

// Package device models the accelerator boundary: the ABI-shaped handle the
// driver expects, the word-level layout of the host and output buffers, and
// an in-process simulator used by tests and benchmarks when no hardware is
// attached.
package device

import "unsafe"

// HardwareCommon mirrors the driver's handle layout. The leading fields
// must keep their order and widths for ABI compatibility; the core treats
// everything except the two memory regions as opaque.
type HardwareCommon struct {
	FD         int32
	CPID       int32
	RdCmdCnt   uint32
	WrCmdCnt   uint32
	CnfgReg    unsafe.Pointer
	CtrlReg    unsafe.Pointer
	CnfgRegAVX unsafe.Pointer
	HMem       unsafe.Pointer
	OMem       unsafe.Pointer

	hostWords   int
	outputWords int
}

// NewHardwareCommon maps host and output regions of the given sizes. The
// regions are allocated once and reused for every invocation.
func NewHardwareCommon(hostWords, outputWords int) *HardwareCommon {
	host := make([]uint64, hostWords)
	output := make([]uint64, outputWords)

	return &HardwareCommon{
		HMem:        unsafe.Pointer(&host[0]),
		OMem:        unsafe.Pointer(&output[0]),
		hostWords:   hostWords,
		outputWords: outputWords,
	}
}

// HostMemory returns the input region as a slice.
func (hc *HardwareCommon) HostMemory() []uint64 {
	return unsafe.Slice((*uint64)(hc.HMem), hc.hostWords)
}

// OutputMemory returns the output region as a slice.
func (hc *HardwareCommon) OutputMemory() []uint64 {
	return unsafe.Slice((*uint64)(hc.OMem), hc.outputWords)
}

// Device runs one accelerator step. Run blocks until the output region
// holds the step's result; any error is structural and fatal to the worker.
type Device interface {
	Run(hc *HardwareCommon) error
}

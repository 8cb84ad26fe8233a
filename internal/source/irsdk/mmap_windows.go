//go:build windows

package irsdk

import (
	"fmt"
	"unsafe"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"
	"golang.org/x/sys/windows"
)

var procOpenFileMapping = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

type view struct {
	handle windows.Handle
	addr   uintptr
	data   []byte
}

func openSharedMemory() (Mapping, error) {
	name, err := windows.UTF16PtrFromString(memMapName)
	if err != nil {
		return nil, err
	}
	r, _, _ := procOpenFileMapping.Call(uintptr(windows.FILE_MAP_READ), 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		return nil, source.ErrNotConnected
	}
	handle := windows.Handle(r)

	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ, 0, 0, 0)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("irsdk: map view: %w", err)
	}
	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info)); err != nil {
		windows.UnmapViewOfFile(addr)
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("irsdk: query view: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), info.RegionSize)
	return &view{handle: handle, addr: addr, data: data}, nil
}

func (v *view) Bytes() []byte { return v.data }

func (v *view) Close() error {
	err := windows.UnmapViewOfFile(v.addr)
	if cerr := windows.CloseHandle(v.handle); err == nil {
		err = cerr
	}
	return err
}

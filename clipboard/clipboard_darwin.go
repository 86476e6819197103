//go:build darwin

package clipboard

import (
	"errors"
	"sync"
	"unsafe"
)

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #include <stdlib.h>
// #import <Cocoa/Cocoa.h>
// int setClipboardContent(const char* text) {
//     NSPasteboard *pasteboard = [NSPasteboard generalPasteboard];
//     [pasteboard clearContents];
//     NSString *string = [NSString stringWithUTF8String:text];
//     return [pasteboard setString:string forType:NSPasteboardTypeString] ? 1 : 0;
// }
import "C"

var clipboardLock sync.Mutex

func setClipboardContent(text string) error {
	clipboardLock.Lock()
	defer clipboardLock.Unlock()

	cstr := C.CString(text)
	defer C.free(unsafe.Pointer(cstr))

	if C.setClipboardContent(cstr) == 0 {
		return errors.New("failed to set clipboard content")
	}
	return nil
}

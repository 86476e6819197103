//go:build darwin

package apple

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=10.15
#cgo LDFLAGS: -framework Speech -framework Foundation -framework AVFoundation

#include <stdlib.h>

// Implemented in engine_darwin.m. Tasks are identified by an opaque
// handle; partial results and errors come back through the exported Go
// callbacks below.
extern int speechRequestAuthorization(void);
extern int speechIsAvailable(const char* locale);
extern long long speechTaskStart(const char* locale, long long handle);
extern void speechTaskAppend(long long task, const float* samples, int count, int sampleRate);
extern void speechTaskFinish(long long task);
extern void speechTaskCancel(long long task);
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// taskRegistry routes native callbacks back to their Go task. Handles
// are process-unique and survive until the task is released.
var taskRegistry = struct {
	mu   sync.Mutex
	next int64
	byID map[int64]*darwinTask
}{byID: make(map[int64]*darwinTask)}

//export goSpeechPartial
func goSpeechPartial(handle C.longlong, text *C.char) {
	t := lookupTask(int64(handle))
	if t == nil {
		return
	}
	t.onPartial(t.tag, C.GoString(text))
}

//export goSpeechError
func goSpeechError(handle C.longlong, message *C.char) {
	t := lookupTask(int64(handle))
	if t == nil {
		return
	}
	t.onErr(t.tag, errors.New(C.GoString(message)))
}

func lookupTask(handle int64) *darwinTask {
	taskRegistry.mu.Lock()
	defer taskRegistry.mu.Unlock()
	return taskRegistry.byID[handle]
}

type darwinEngine struct{}

func newEngine() recognitionEngine { return darwinEngine{} }

func (darwinEngine) Authorize() error {
	if C.speechRequestAuthorization() == 0 {
		return errors.New("speech recognition authorization denied")
	}
	return nil
}

func (darwinEngine) Available(locale string) bool {
	cLocale := C.CString(locale)
	defer C.free(unsafe.Pointer(cLocale))
	return C.speechIsAvailable(cLocale) != 0
}

func (darwinEngine) NewTask(locale, tag string, onPartial func(tag, text string), onErr func(tag string, err error)) (recognitionTask, error) {
	t := &darwinTask{tag: tag, onPartial: onPartial, onErr: onErr}

	taskRegistry.mu.Lock()
	taskRegistry.next++
	t.handle = taskRegistry.next
	taskRegistry.byID[t.handle] = t
	taskRegistry.mu.Unlock()

	cLocale := C.CString(locale)
	defer C.free(unsafe.Pointer(cLocale))

	ref := C.speechTaskStart(cLocale, C.longlong(t.handle))
	if ref == 0 {
		t.release()
		return nil, fmt.Errorf("start recognition task for locale %q", locale)
	}
	t.ref = int64(ref)
	return t, nil
}

// darwinTask wraps one SFSpeechAudioBufferRecognitionRequest.
type darwinTask struct {
	handle int64
	ref    int64
	tag    string

	onPartial func(tag, text string)
	onErr     func(tag string, err error)
}

func (t *darwinTask) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}
	C.speechTaskAppend(C.longlong(t.ref),
		(*C.float)(unsafe.Pointer(&samples[0])),
		C.int(len(samples)),
		C.int(sampleRate))
}

func (t *darwinTask) Finish() {
	C.speechTaskFinish(C.longlong(t.ref))
	t.release()
}

func (t *darwinTask) Cancel() {
	C.speechTaskCancel(C.longlong(t.ref))
	t.release()
}

func (t *darwinTask) release() {
	taskRegistry.mu.Lock()
	delete(taskRegistry.byID, t.handle)
	taskRegistry.mu.Unlock()
}

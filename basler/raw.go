//go:build pylon

package basler

/*
#cgo linux CFLAGS: -I/opt/pylon/include
#cgo linux LDFLAGS: -L/opt/pylon/lib -lpylonc -Wl,-rpath,/opt/pylon/lib
#include <stdlib.h>
#include <pylonc/PylonC.h>
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// GenAPIError is a GENAPIC_RESULT error code with the last error message of the library
type GenAPIError struct {
	Code uint32
	Msg  string
}

func (e GenAPIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("pylon error %#08x", e.Code)
	}
	return fmt.Sprintf("pylon error %#08x - %s", e.Code, e.Msg)
}

// Error returns nil on GENAPI_E_OK or the error with its message
func Error(code C.GENAPIC_RESULT) error {
	if code == C.GENAPI_E_OK {
		return nil
	}
	return GenAPIError{Code: uint32(code), Msg: lastError()}
}

func lastError() string {
	var n C.size_t
	if C.GenApiGetLastErrorMessage(nil, &n) != C.GENAPI_E_OK || n == 0 {
		return ""
	}
	buf := (*C.char)(C.malloc(n))
	defer C.free(unsafe.Pointer(buf))
	if C.GenApiGetLastErrorMessage(buf, &n) != C.GENAPI_E_OK {
		return ""
	}
	return C.GoString(buf)
}

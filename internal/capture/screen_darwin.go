package capture

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <dlfcn.h>
#include <stdlib.h>

enum {
    grabOK = 0,
    grabNoSymbol = 1,
    grabNoImage = 2,
    grabNoMemory = 3,
};

typedef struct {
    void*  data;
    size_t size;
    int    width;
    int    height;
    int    status;
} GrabResult;

// CGWindowListCreateImage is missing from recent SDK headers but still
// exported by the CoreGraphics dylib.
typedef CGImageRef (*createImageFunc)(CGRect, uint32_t, uint32_t, uint32_t);

static createImageFunc lookupCreateImage(void) {
    static createImageFunc fn = NULL;
    if (!fn) {
        fn = (createImageFunc)dlsym(RTLD_DEFAULT, "CGWindowListCreateImage");
    }
    return fn;
}

static CGDirectDisplayID displayAt(int index, int* ok) {
    CGDirectDisplayID ids[16];
    uint32_t count = 0;
    *ok = 0;
    if (index == 0) {
        *ok = 1;
        return CGMainDisplayID();
    }
    if (CGGetActiveDisplayList(16, ids, &count) != kCGErrorSuccess || index >= (int)count) {
        return 0;
    }
    *ok = 1;
    return ids[index];
}

static int activeDisplays(void) {
    uint32_t count = 0;
    if (CGGetActiveDisplayList(0, NULL, &count) != kCGErrorSuccess) {
        return 0;
    }
    return (int)count;
}

static GrabResult grab(int index) {
    GrabResult r = {0};
    int ok = 0;
    CGDirectDisplayID id = displayAt(index, &ok);
    createImageFunc fn = lookupCreateImage();
    if (!fn || !ok) {
        r.status = grabNoSymbol;
        return r;
    }

    // kCGWindowListOptionOnScreenOnly, kCGNullWindowID, kCGWindowImageDefault
    CGImageRef image = fn(CGDisplayBounds(id), 1, 0, 0);
    if (!image) {
        r.status = grabNoImage;
        return r;
    }

    r.width  = (int)CGImageGetWidth(image);
    r.height = (int)CGImageGetHeight(image);
    r.size   = (size_t)r.width * 4 * r.height;
    r.data   = malloc(r.size);
    if (!r.data) {
        CGImageRelease(image);
        r.status = grabNoMemory;
        return r;
    }

    CGColorSpaceRef cs = CGColorSpaceCreateDeviceRGB();
    CGContextRef ctx = CGBitmapContextCreate(r.data, r.width, r.height, 8,
        (size_t)r.width * 4, cs, kCGImageAlphaPremultipliedLast);
    CGContextDrawImage(ctx, CGRectMake(0, 0, r.width, r.height), image);
    CGContextRelease(ctx);
    CGColorSpaceRelease(cs);
    CGImageRelease(image);
    return r;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/junsooki/framecast/internal/permissions"
)

const screenBackend = "coregraphics"

func screenAvailable(display int) bool {
	if !permissions.HasScreenRecording() {
		// Triggers the system prompt; the process must restart once granted.
		permissions.RequestScreenRecording()
		return false
	}
	return display >= 0 && display < int(C.activeDisplays())
}

func grabDisplay(display int) (*image.RGBA, error) {
	r := C.grab(C.int(display))
	switch r.status {
	case C.grabOK:
	case C.grabNoSymbol:
		return nil, fmt.Errorf("%w: CGWindowListCreateImage unavailable or display %d missing", ErrUnsupported, display)
	case C.grabNoImage:
		return nil, errors.New("capture: CoreGraphics returned no image")
	default:
		return nil, errors.New("capture: out of memory copying screen")
	}
	defer C.free(r.data)

	w, h, n := int(r.width), int(r.height), int(r.size)
	pix := make([]byte, n)
	copy(pix, unsafe.Slice((*byte)(r.data), n))
	return &image.RGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

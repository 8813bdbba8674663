//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "github.com/rs/zerolog"

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() Status {
	return Status(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsurePermissions checks microphone access and asks for it when it has
// not been decided yet. Capture of a loopback device does not need it, so
// callers log the error and carry on.
func EnsurePermissions(log zerolog.Logger) error {
	status := CheckMicrophone()
	switch status {
	case Authorized:
		return nil
	case NotDetermined:
		log.Warn().Msg("Microphone permission required, requesting access")
		RequestMicrophone()
	default:
		log.Warn().
			Str("status", status.String()).
			Msg("Microphone access denied. Enable it in System Settings → Privacy & Security → Microphone")
	}
	return ErrMicrophoneDenied
}

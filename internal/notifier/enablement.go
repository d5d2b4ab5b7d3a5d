package notifier

import (
	"context"

	"mxnotify/internal/platform"
	"mxnotify/internal/settings"
	"mxnotify/pkg/logx"
)

// EnablementState summarises the combined platform/permission/preference
// picture for UI consumers.
type EnablementState string

const (
	StateUnsupported    EnablementState = "unsupported"
	StateDisabled       EnablementState = "disabled"
	StateRequesting     EnablementState = "requesting"
	StateGrantedEnabled EnablementState = "granted-enabled"
	StateGrantedOff     EnablementState = "granted-disabled"
	StateDenied         EnablementState = "denied"
)

// IsPossible reports whether the platform can show notifications at all,
// permission included.
func (n *Notifier) IsPossible() bool {
	return n.plat != nil && n.plat.SupportsNotifications() && n.plat.MaySendNotifications()
}

// IsEnabled reports whether popups are both possible and switched on.
func (n *Notifier) IsEnabled() bool {
	if !n.IsPossible() {
		return false
	}
	return n.settings != nil && n.settings.GetValue(settings.KeyNotificationsEnabled)
}

func (n *Notifier) IsBodyEnabled() bool {
	return n.IsEnabled() && n.settings.GetValue(settings.KeyNotificationBodyEnabled)
}

func (n *Notifier) IsAudioEnabled() bool {
	return n.IsEnabled() && n.settings.GetValue(settings.KeyAudioNotificationsEnabled)
}

func (n *Notifier) State() EnablementState {
	if n.plat == nil || !n.plat.SupportsNotifications() {
		return StateUnsupported
	}

	n.emu.Lock()
	requesting := n.requesting
	last := n.lastPermission
	n.emu.Unlock()

	if requesting {
		return StateRequesting
	}
	if !n.plat.MaySendNotifications() {
		if last == platform.PermissionDenied {
			return StateDenied
		}
		return StateDisabled
	}
	if n.settings != nil && n.settings.GetValue(settings.KeyNotificationsEnabled) {
		return StateGrantedEnabled
	}
	return StateGrantedOff
}

// SetEnabled turns popup notifications on or off. Enabling may require a
// platform permission prompt; done, if non-nil, runs once after a grant has
// been fully applied. The current audio preference is re-persisted at device
// level before anything else so a later permission denial cannot lose it.
func (n *Notifier) SetEnabled(ctx context.Context, enable bool, done func()) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if n.settings != nil && n.settings.IsLevelSupported(settings.LevelDevice) {
		if err := n.settings.SetValue(settings.KeyAudioNotificationsEnabled, "", settings.LevelDevice, n.IsAudioEnabled()); err != nil {
			n.log.Warn("persist audio preference failed", logx.Err(err))
		}
	}

	if enable {
		n.emu.Lock()
		already := n.requesting
		n.requesting = true
		n.emu.Unlock()
		if already {
			n.dismissPrompt()
			return nil
		}
		go func() {
			res, err := platform.PermissionDenied, error(nil)
			if n.plat != nil {
				res, err = n.plat.RequestPermission(ctx)
			}
			// Completion runs on the engine loop; if the engine is not
			// running (or the queue is saturated), complete inline.
			if !n.post(signal{kind: sigPermission, perm: res, permErr: err, after: done}) {
				n.completePermission(res, err, done)
			}
		}()
	} else {
		if n.settings != nil {
			if err := n.settings.SetValue(settings.KeyNotificationsEnabled, "", settings.LevelDevice, false); err != nil {
				n.dismissPrompt()
				return err
			}
		}
		n.publish(EventEnabled, EnabledEvent{Value: false})
	}

	// Acting on a notification prompt, either way, dismisses it for good.
	n.dismissPrompt()
	return nil
}

func (n *Notifier) completePermission(res platform.PermissionResult, err error, done func()) {
	n.emu.Lock()
	n.requesting = false
	n.lastPermission = res
	n.emu.Unlock()

	if err != nil {
		n.log.Warn("permission request failed", logx.Err(err))
		return
	}

	switch res {
	case platform.PermissionGranted:
		if n.settings != nil {
			if serr := n.settings.SetValue(settings.KeyNotificationsEnabled, "", settings.LevelDevice, true); serr != nil {
				n.log.Warn("persist enable failed", logx.Err(serr))
			}
		}
		if done != nil {
			done()
		}
		n.publish(EventEnabled, EnabledEvent{Value: true})
	case platform.PermissionDenied:
		n.log.Info("notification permission denied")
		if n.plat != nil {
			n.plat.ShowDialog("Unable to enable notifications",
				"This client does not have permission to send you notifications. Please check your platform settings.")
		}
	default:
		n.log.Info("notification permission prompt dismissed")
		if n.plat != nil {
			n.plat.ShowDialog("Unable to enable notifications",
				"The notification permission was not granted. Try to enable notifications again to see the prompt.")
		}
	}
}

// ShouldShowPrompt reports whether the enable-notifications nag is due:
// a real (non-guest) session on a capable platform, notifications off, and
// the prompt never dismissed.
func (n *Notifier) ShouldShowPrompt() bool {
	if n.client == nil || n.client.IsGuest() {
		return false
	}
	if n.plat == nil || !n.plat.SupportsNotifications() {
		return false
	}
	if n.IsEnabled() {
		return false
	}
	return n.flags == nil || !n.flags.PromptDismissed()
}

// SetPromptHidden records a dismissal and nudges UI consumers to re-read
// enablement state.
func (n *Notifier) SetPromptHidden(hidden bool) {
	if n.flags != nil {
		if err := n.flags.SetPromptDismissed(hidden); err != nil {
			n.log.Warn("persist prompt flag failed", logx.Err(err))
		}
	}
	n.publish(EventEnabled, EnabledEvent{Value: n.IsEnabled()})
}

func (n *Notifier) dismissPrompt() {
	if n.flags == nil {
		return
	}
	if err := n.flags.SetPromptDismissed(true); err != nil {
		n.log.Warn("persist prompt flag failed", logx.Err(err))
	}
}

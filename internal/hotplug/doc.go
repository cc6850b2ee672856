// Package hotplug waits for the card reader's serial device node to appear,
// using udev netlink events with a periodic stat as a fallback.
package hotplug

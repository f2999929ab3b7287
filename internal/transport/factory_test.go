package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keepkeycore/internal/deviceinfo"
)

func TestSelect_LegacyBootloaderUsesHID(t *testing.T) {
	d := deviceinfo.Descriptor{ProductID: deviceinfo.PIDLegacyBootloader}
	c := Select(d, func(deviceinfo.Descriptor) (ReportDevice, error) { return nil, nil })
	_, ok := c.(*hidCarrier)
	assert.True(t, ok)
}

func TestSelect_ModernUsesUSBBulk(t *testing.T) {
	d := deviceinfo.Descriptor{ProductID: deviceinfo.PIDModern}
	c := Select(d, nil)
	_, ok := c.(*usbCarrier)
	assert.True(t, ok)
}

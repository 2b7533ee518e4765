package parser

import (
	"strings"

	"github.com/fortilog-systems/fortilog/internal/models"
)

// classificationTable is scanned in order, first match wins. The ordering is a
// preserved business rule: specific Apple tokens (iphone, ipad) sit before
// broader ones so generic substrings in unrelated tokens cannot shadow them.
var classificationTable = []struct {
	vendor   models.Vendor
	keywords []string
}{
	{models.VendorWindows, []string{"windows", "microsoft"}},
	{models.VendorAndroid, []string{"android", "samsung", "xiaomi", "motorola", "huawei"}},
	// " ios " is token-bounded: a bare substring would swallow "fortios".
	{models.VendorApple, []string{"iphone", "ipad", " ios ", "apple", "macbook", "macos", "mac os"}},
	{models.VendorLinux, []string{"linux", "ubuntu", "debian"}},
	{models.VendorCamera, []string{"intelbras", "camera", "cam-"}},
	{models.VendorFortinet, []string{"fortinet", "fortigate", "fortios"}},
}

// Classify maps the OS field, device-type field and resolved display name to
// a vendor via case-insensitive keyword match over their concatenation. When
// no keyword matches, the first word of the OS string gets one more pass
// through the table before the line lands in Other.
func Classify(osName, devType, displayName string) models.Vendor {
	if v, ok := match(strings.ToLower(osName + " " + devType + " " + displayName)); ok {
		return v
	}
	if first, _, _ := strings.Cut(strings.TrimSpace(osName), " "); first != "" {
		if v, ok := match(strings.ToLower(first)); ok {
			return v
		}
	}
	return models.VendorOther
}

func match(haystack string) (models.Vendor, bool) {
	haystack = " " + haystack + " "
	for _, rule := range classificationTable {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.vendor, true
			}
		}
	}
	return models.VendorOther, false
}

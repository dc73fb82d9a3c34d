package device

// Field identifies one mergeable device attribute. Merging runs through
// a fixed table keyed by these values rather than reflection, so the
// precedence rules stay statically checkable.
type Field int

const (
	FieldDeviceID Field = iota
	FieldHost
	FieldType
	FieldFriendlyName
	FieldModel
	FieldHWModel
	FieldInstalledVersion
	FieldLatestVersion
	FieldDeviceAuth
	FieldBaseURL
	FieldDiscoverURL
	FieldLineupURL
	FieldTunerCount
)

type fieldMerge struct {
	field Field
	apply func(dst, src *Device, srcWins bool)
}

// mergeTable is the canonical field list. DeviceID is immutable once
// set, so its entry never lets the source win.
var mergeTable = []fieldMerge{
	{FieldDeviceID, func(d, s *Device, _ bool) { mergeString(&d.DeviceID, s.DeviceID, false) }},
	{FieldHost, func(d, s *Device, w bool) { mergeString(&d.Host, s.Host, w) }},
	{FieldType, func(d, s *Device, w bool) {
		if s.Kind != TypeUnknown && (d.Kind == TypeUnknown || w) {
			d.Kind = s.Kind
		}
	}},
	{FieldFriendlyName, func(d, s *Device, w bool) { mergeString(&d.FriendlyName, s.FriendlyName, w) }},
	{FieldModel, func(d, s *Device, w bool) { mergeString(&d.Model, s.Model, w) }},
	{FieldHWModel, func(d, s *Device, w bool) { mergeString(&d.HWModel, s.HWModel, w) }},
	{FieldInstalledVersion, func(d, s *Device, w bool) { mergeString(&d.InstalledVersion, s.InstalledVersion, w) }},
	{FieldLatestVersion, func(d, s *Device, w bool) { mergeString(&d.LatestVersion, s.LatestVersion, w) }},
	{FieldDeviceAuth, func(d, s *Device, w bool) { mergeString(&d.DeviceAuth, s.DeviceAuth, w) }},
	{FieldBaseURL, func(d, s *Device, w bool) { mergeString(&d.BaseURL, s.BaseURL, w) }},
	{FieldDiscoverURL, func(d, s *Device, w bool) { mergeString(&d.DiscoverURL, s.DiscoverURL, w) }},
	{FieldLineupURL, func(d, s *Device, w bool) { mergeString(&d.LineupURL, s.LineupURL, w) }},
	{FieldTunerCount, func(d, s *Device, w bool) { mergeInt(&d.TunerCount, s.TunerCount, w) }},
}

// Merge folds src's populated fields into d. A zero or empty candidate
// value never overwrites anything. When srcWins is true (src came via
// the higher-precedence transport, i.e. HTTP) a populated candidate
// replaces an existing value; otherwise it only fills gaps.
func (d *Device) Merge(src *Device, srcWins bool) {
	for _, fm := range mergeTable {
		fm.apply(d, src, srcWins)
	}
}

func mergeString(dst *string, src string, srcWins bool) {
	if src == "" {
		return
	}
	if *dst == "" || srcWins {
		*dst = src
	}
}

func mergeInt(dst *int, src int, srcWins bool) {
	if src == 0 {
		return
	}
	if *dst == 0 || srcWins {
		*dst = src
	}
}

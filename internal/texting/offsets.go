package texting

// Partition splits every offset in the table into those that may be texted
// now under cfg and those that may not. The result feeds SQL IN filters, so
// it must agree with IsEligibleNow for every entry.
func (e *Evaluator) Partition(cfg HoursConfig) (valid, invalid []Timezone) {
	w := e.window(cfg)
	for _, tz := range e.table.entries {
		if w.eligible(tz) {
			valid = append(valid, tz)
		} else {
			invalid = append(invalid, tz)
		}
	}
	return valid, invalid
}

// PartitionKeys is Partition rendered as timezone_offset column values.
func (e *Evaluator) PartitionKeys(cfg HoursConfig) (valid, invalid []string) {
	v, i := e.Partition(cfg)
	return Keys(v), Keys(i)
}

func Keys(tzs []Timezone) []string {
	out := make([]string, 0, len(tzs))
	for _, tz := range tzs {
		out = append(out, tz.Key())
	}
	return out
}

package core

// NemesisProcessMagicNumber marks ops recorded by the nemesis pseudo-process.
const NemesisProcessMagicNumber = -1

// FilterOkOrInfoHistory keeps ops which took effect or may have.
func FilterOkOrInfoHistory(history History) History {
	var h History
	for _, op := range history {
		if op.Type == OpTypeOk || op.Type == OpTypeInfo {
			h = append(h, op)
		}
	}
	return h
}

// FilterOutNemesisHistory drops nemesis ops.
func FilterOutNemesisHistory(history History) History {
	var h History
	for _, op := range history {
		if op.Type == OpTypeNemesis {
			continue
		}
		if op.Process.Present() && op.Process.MustGet() == NemesisProcessMagicNumber {
			continue
		}
		h = append(h, op)
	}
	return h
}

// FilterOkHistory keeps ops which definitely took effect.
func FilterOkHistory(history History) History {
	var h History
	for _, op := range history {
		if op.Type == OpTypeOk {
			h = append(h, op)
		}
	}
	return h
}

// FilterFailedHistory keeps ops which definitely did not take effect.
func FilterFailedHistory(history History) History {
	var h History
	for _, op := range history {
		if op.Type == OpTypeFail {
			h = append(h, op)
		}
	}
	return h
}

package weather

// Project maps a resolved fetch for the given intent into the Outcome exposed to
// consumers. It has no side effects.
func Project(in Intent, payload Payload, err error) Outcome {
	if err != nil {
		return Outcome{Kind: OutcomeFailure, Error: KindOf(err)}
	}

	var tag ResultTag
	switch in.(type) {
	case CitySearch:
		tag = TagCity
	case CoordinateSearch:
		tag = TagLocation
	case RefreshCurrent:
		tag = TagRefresh
	default:
		// RestoreLast is resolved before dispatch and never carries a payload.
		return Outcome{Kind: OutcomeFailure, Error: UnknownError}
	}

	p := payload
	if p.Condition == "" {
		p.Condition = ConditionUnknown
	}
	return Outcome{Kind: OutcomeSuccess, Tag: tag, Weather: &p}
}

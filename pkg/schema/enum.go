package schema

// EnumEquivalent implements the enum-comment normalization of §4.2
// step 6: a TypeScript-style string enum ({NAME: "value"}) and the
// database's integer-mapped form ({"value"=n}) are equivalent so long
// as member count matches and the cross-mapping holds position by
// position. The DB side's integer-mapped member *name* is the string
// literal the engine assigned (e.g. "text"), while the TS side's
// member *name* is the identifier (e.g. "TEXT") and its *StringValue*
// is the literal ("text") — so the two representations agree on the
// literal, not on the identifier. Equivalence therefore compares the
// int side's Name against the string side's StringValue, position by
// position.
func EnumEquivalent(a, b *ColumnType) bool {
	if a.Kind != KindEnum || b.Kind != KindEnum {
		return false
	}
	if len(a.EnumMembers) != len(b.EnumMembers) {
		return false
	}
	aIsString := anyString(a.EnumMembers)
	bIsString := anyString(b.EnumMembers)
	if aIsString == bIsString {
		// Same representation: equivalence is just equality, handled
		// elsewhere by the ordinary field-diff path.
		return false
	}

	stringMembers, intMembers := a.EnumMembers, b.EnumMembers
	if !aIsString {
		stringMembers, intMembers = b.EnumMembers, a.EnumMembers
	}

	for i := range intMembers {
		if intMembers[i].Name != stringMembers[i].StringValue {
			return false
		}
	}
	return true
}

func anyString(members []EnumMember) bool {
	for _, m := range members {
		if m.IsString {
			return true
		}
	}
	return false
}

package parsing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const cleanPayload = `{"companies":[{"company":"Acme Robotics","summary":"industrial arms","sources":["https://acme.example"]},{"company":"Vintrace","summary":"winery software"}]}`

func TestParse_Tier1_WholeJSON(t *testing.T) {
	res := Parse(cleanPayload)
	require.Equal(t, Parsed, res.Variant)
	require.Equal(t, TierJSON, res.Tier)
	require.Len(t, res.Records, 2)
	require.Equal(t, "Acme Robotics", res.Records[0].Name)
	require.Equal(t, TierJSON, res.Records[0].ParseOrigin)
}

func TestParse_Tier1_BareArray(t *testing.T) {
	res := Parse(`[{"company":"Acme"},{"company":"Beta"}]`)
	require.Equal(t, Parsed, res.Variant)
	require.Len(t, res.Records, 2)
}

func TestParse_Tier2_FencedBlock(t *testing.T) {
	raw := "Here are the results: ```json\n" + cleanPayload + "\n``` thanks!"
	res := Parse(raw)
	require.Equal(t, Parsed, res.Variant)
	require.Equal(t, TierFenced, res.Tier)
	require.Len(t, res.Records, 2)
}

func TestParse_Tier2_MatchesBareParse(t *testing.T) {
	bare := Parse(cleanPayload)
	fenced := Parse("prose before\n```\n" + cleanPayload + "\n```\nprose after")

	require.Len(t, fenced.Records, len(bare.Records))
	for i := range bare.Records {
		fenced.Records[i].ParseOrigin = bare.Records[i].ParseOrigin
		require.Equal(t, bare.Records[i], fenced.Records[i])
	}
}

func TestParse_FencedAcmeScenario(t *testing.T) {
	raw := "Here are the results: ```json {\"companies\":[{\"company\":\"Acme\"}]}``` thanks!"
	res := Parse(raw)
	require.Equal(t, TierFenced, res.Tier)
	require.Len(t, res.Records, 1)
	require.Equal(t, "Acme", res.Records[0].Name)
}

func TestParse_Tier3_SpanInBrokenEnclosure(t *testing.T) {
	// The outer object is truncated, but the companies array is intact.
	raw := `My analysis follows. {"thesis": "robotics", "companies": [{"company":"Acme","summary":"arms {and} grippers"},{"company":"Beta"}], "note": "unterminated`
	res := Parse(raw)
	require.Equal(t, PartialParsed, res.Variant)
	require.Equal(t, TierSpan, res.Tier)
	require.Len(t, res.Records, 2)
	require.Equal(t, "arms {and} grippers", res.Records[0].Summary)
}

func TestParse_Tier4_Fragments(t *testing.T) {
	raw := `I found these:
First, {"company":"Acme","summary":"robots"} looks strong.
Also consider {"company":"Beta","website":"https://beta.example"}.
[broken json here`
	res := Parse(raw)
	require.Equal(t, PartialParsed, res.Variant)
	require.Equal(t, TierFragment, res.Tier)
	require.Len(t, res.Records, 2)
	require.Equal(t, "Beta", res.Records[1].Name)
}

func TestParse_Tier5_RawFallback(t *testing.T) {
	raw := "I could not find any companies matching the thesis."
	res := Parse(raw)
	require.Equal(t, Raw, res.Variant)
	require.Equal(t, TierRaw, res.Tier)
	require.Len(t, res.Records, 1)
	require.Equal(t, raw, res.Records[0].Summary)
	require.Equal(t, TierRaw, res.Records[0].ParseOrigin)
	require.Empty(t, res.Records[0].Name)
}

func TestParse_NamelessEntriesDropped(t *testing.T) {
	res := Parse(`{"companies":[{"company":"Acme"},{"summary":"no name"}]}`)
	require.Len(t, res.Records, 1)
}

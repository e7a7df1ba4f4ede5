package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/internal/testutil"
)

func user(text string) *core.Event {
	return testutil.NewEventBuilder().Author(core.AuthorUser).UserText(text).Build()
}

func reply(author, text string) *core.Event {
	return testutil.NewEventBuilder().Author(author).ModelText(text).Build()
}

func texts(contents []core.Content) []string {
	out := make([]string, len(contents))
	for i, c := range contents {
		out[i] = c.Text()
	}
	return out
}

func TestBuildContents_CausalRearrangement(t *testing.T) {
	call := testutil.NewEventBuilder().Author("agent").
		FunctionCall("1", "lookup", nil).
		FunctionCall("2", "lookup", nil).Build()
	other := reply("agent", "still working")
	resp1 := testutil.NewEventBuilder().Author("agent").FunctionResponse("1", "lookup", map[string]any{"v": 1}).Build()
	resp2 := testutil.NewEventBuilder().Author("agent").FunctionResponse("2", "lookup", map[string]any{"v": 2}).Build()

	contents, err := BuildContents("", []*core.Event{user("go"), call, other, resp1, resp2}, "agent")
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Len(t, contents[1].FunctionCalls(), 2)
	merged := (&core.Event{Content: &contents[2]}).FunctionResponses()
	require.Len(t, merged, 2)
	assert.Equal(t, "1", merged[0].ID)
	assert.Equal(t, "2", merged[1].ID)
	for _, c := range contents {
		assert.NotEqual(t, "still working", c.Text())
	}
}

func TestBuildContents_HistoryRearrangement(t *testing.T) {
	call := testutil.NewEventBuilder().Author("agent").FunctionCall("a", "slow", nil).Build()
	interim := reply("agent", "waiting")
	resp := testutil.NewEventBuilder().Author("agent").FunctionResponse("a", "slow", map[string]any{"done": true}).Build()
	orphan := testutil.NewEventBuilder().Author("agent").FunctionResponse("zzz", "gone", nil).Build()

	events := []*core.Event{user("start"), call, interim, resp, orphan, user("next")}
	contents, err := BuildContents("", events, "agent")
	require.NoError(t, err)
	require.Len(t, contents, 5)
	assert.Len(t, contents[1].FunctionCalls(), 1)
	assert.Equal(t, "a", (&core.Event{Content: &contents[2]}).FunctionResponses()[0].ID)
	assert.Equal(t, []string{"start", "", "", "waiting", "next"}, texts(contents))
}

func TestBuildContents_LatestResponseCollectsAnyMatchingID(t *testing.T) {
	call := testutil.NewEventBuilder().Author("agent").
		FunctionCall("1", "lookup", nil).
		FunctionCall("2", "lookup", nil).Build()
	mixed := testutil.NewEventBuilder().Author("agent").
		FunctionResponse("x", "stale", nil).
		FunctionResponse("1", "lookup", map[string]any{"v": 1}).Build()
	last := testutil.NewEventBuilder().Author("agent").FunctionResponse("2", "lookup", map[string]any{"v": 2}).Build()

	contents, err := BuildContents("", []*core.Event{user("go"), call, reply("agent", "filler"), mixed, last}, "agent")
	require.NoError(t, err)
	require.Len(t, contents, 3)

	ids := map[string]bool{}
	for _, fr := range (&core.Event{Content: &contents[2]}).FunctionResponses() {
		ids[fr.ID] = true
	}
	assert.True(t, ids["1"])
	assert.True(t, ids["2"])
}

func TestBuildContents_ReconstructionError(t *testing.T) {
	call := testutil.NewEventBuilder().Author("agent").FunctionCall("1", "f", nil).Build()
	filler := reply("agent", "filler")
	resp := testutil.NewEventBuilder().Author("agent").
		FunctionResponse("1", "f", nil).
		FunctionResponse("9", "g", nil).Build()

	_, err := BuildContents("", []*core.Event{user("hi"), call, filler, resp}, "agent")
	var recErr *core.ReconstructionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, []string{"1"}, recErr.CallIDs)
	assert.Equal(t, core.CodeReconstruction, core.ErrorCode(err))

	_, err = BuildContents("", []*core.Event{user("hi"), filler, testutil.NewEventBuilder().FunctionResponse("x", "f", nil).Build()}, "agent")
	assert.ErrorAs(t, err, &recErr)
}

func TestBuildContents_BranchFilter(t *testing.T) {
	events := []*core.Event{
		user("root"),
		testutil.NewEventBuilder().Author("agent").Branch("par.a").ModelText("from a").Build(),
		testutil.NewEventBuilder().Author("agent").Branch("par.b").ModelText("from b").Build(),
		testutil.NewEventBuilder().Author("agent").Branch("par").ModelText("from par").Build(),
		testutil.NewEventBuilder().Author("agent").Branch("par.ab").ModelText("from ab").Build(),
	}
	contents, err := BuildContents("par.a", events, "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "from a", "from par"}, texts(contents))
}

func TestBuildContents_ForeignAgentRewrite(t *testing.T) {
	call := testutil.NewEventBuilder().Author("researcher").FunctionCall("c", "search", map[string]any{"q": "go"}).Build()
	resp := testutil.NewEventBuilder().Author("researcher").FunctionResponse("c", "search", map[string]any{"hits": 3}).Build()
	events := []*core.Event{user("hi"), reply("researcher", "found it"), call, resp, reply("writer", "drafting")}

	contents, err := BuildContents("", events, "writer")
	require.NoError(t, err)
	require.Len(t, contents, 5)

	said := contents[1]
	assert.Equal(t, core.RoleUser, said.Role)
	assert.Equal(t, "For context:", said.Parts[0].(core.TextPart).Text)
	assert.Equal(t, "[researcher] said: found it", said.Parts[1].(core.TextPart).Text)
	assert.Equal(t, "[researcher] called tool `search` with parameters: {\"q\":\"go\"}", contents[2].Parts[1].(core.TextPart).Text)
	assert.Equal(t, "[researcher] `search` tool returned result: {\"hits\":3}", contents[3].Parts[1].(core.TextPart).Text)
	assert.Equal(t, core.RoleModel, contents[4].Role)
	assert.Equal(t, "drafting", contents[4].Text())
}

func TestBuildContents_DropsNoise(t *testing.T) {
	auth := testutil.NewEventBuilder().Author("agent").
		FunctionCall("loom-x", core.RequestCredentialFunctionName, map[string]any{"function_call_id": "c"}).Build()
	empty := testutil.NewEventBuilder().Author("agent").ModelText("").Build()
	bare := core.NewEvent("inv-1", "agent")

	contents, err := BuildContents("", []*core.Event{user("hi"), auth, empty, bare, reply("agent", "ok")}, "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "ok"}, texts(contents))
}

func TestBuildContents_DoesNotMutateEvents(t *testing.T) {
	call := testutil.NewEventBuilder().Author("agent").FunctionCall("loom-1", "f", nil).Build()
	resp := testutil.NewEventBuilder().Author("agent").FunctionResponse("loom-1", "f", nil).Build()

	contents, err := BuildContents("", []*core.Event{user("hi"), call, resp}, "agent")
	require.NoError(t, err)
	assert.Empty(t, contents[1].FunctionCalls()[0].ID)
	assert.Equal(t, "loom-1", call.FunctionCalls()[0].ID)
}

func TestBuildCurrentTurnContents(t *testing.T) {
	events := []*core.Event{
		user("first question"),
		reply("agent", "first answer"),
		user("second question"),
		reply("agent", "partial thought"),
	}
	contents, err := BuildCurrentTurnContents("", events, "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"second question", "partial thought"}, texts(contents))

	contents, err = BuildCurrentTurnContents("", []*core.Event{reply("agent", "alone")}, "agent")
	require.NoError(t, err)
	assert.Empty(t, contents)

	contents, err = BuildCurrentTurnContents("", append(events, reply("helper", "handoff")), "agent")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "For context:", contents[0].Parts[0].(core.TextPart).Text)
}

func TestBuildCurrentTurnContents_IgnoresSiblingBranches(t *testing.T) {
	sibling := testutil.NewEventBuilder().Author("B").Branch("par.B").ModelText("dogs are better").Build()

	contents, err := BuildCurrentTurnContents("par.A", []*core.Event{user("research cats"), sibling}, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"research cats"}, texts(contents))
}

func TestBuildCurrentTurnContents_IgnoresStateOnlyEvents(t *testing.T) {
	marker := testutil.NewEventBuilder().Author("A").StateDelta("done", true).Build()

	contents, err := BuildCurrentTurnContents("", []*core.Event{user("start"), reply("A", "handing over"), marker}, "B")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "[A] said: handing over", contents[0].Parts[1].(core.TextPart).Text)
}

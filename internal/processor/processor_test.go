package processor

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, p *Processor, request string) map[string]any {
	t.Helper()
	out, err := p.ProcessRequest([]byte(request))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	return decoded
}

func errorCodeOf(t *testing.T, resp map[string]any) string {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected an error response, got %v", resp)
	return e["code"].(string)
}

func TestProcessRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		request string
		code    string
	}{
		{"bad json", `{"query":`, CodeInvalidRequest},
		{"unknown query", `{"query":"weather"}`, CodeUnknownQuery},
		{"predict without teams", `{"query":"predict"}`, CodeInvalidInput},
		{"predict self", `{"query":"predict","home":"A","away":"A"}`, CodeInvalidInput},
		{"negative goals", `{"query":"predict","home":"A","away":"B","history":[{"homeTeam":"A","awayTeam":"B","homeGoals":-1,"awayGoals":0}]}`, CodeInvalidInput},
		{"bad result label", `{"query":"elo","matches":[{"homeTeam":"A","awayTeam":"B","result":"win"}]}`, CodeInvalidResult},
		{"odds of one", `{"query":"value_bets","fixtures":[{"id":"1","model_1x2":{"home_win":0.5,"draw":0.3,"away_win":0.2},"odds_1x2":{"home_win":1.0,"draw":3.5,"away_win":5}}]}`, CodeInvalidOdds},
		{"empty value_bets", `{"query":"value_bets"}`, CodeInvalidInput},
		{"negative shot distance", `{"query":"xg","homeShots":[{"distance":-3,"angle":0}]}`, CodeInvalidInput},
		{"unknown strategy", `{"query":"xg","strategy":"magic"}`, CodeInvalidInput},
		{"untrained logistic", `{"query":"xg","strategy":"logistic"}`, CodeInvalidInput},
		{"training with heuristic", `{"query":"xg","strategy":"heuristic","training":[{"distance":5,"angle":0,"isGoal":true},{"distance":30,"angle":40}]}`, CodeInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := run(t, New(nil), tc.request)
			assert.Equal(t, tc.code, errorCodeOf(t, resp))
		})
	}
}

func TestProcessRequestKeepsRequestID(t *testing.T) {
	resp := run(t, New(nil), `{"query":"weather","requestId":"abc-1"}`)
	assert.Equal(t, "abc-1", resp["requestId"])
}

func TestListTools(t *testing.T) {
	resp := run(t, New(nil), `{"query":"list"}`)
	tools, ok := resp["tools"].([]any)
	require.True(t, ok)
	names := []string{}
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"predict", "elo", "value_bets", "xg"}, names)
}

func TestEloQuery(t *testing.T) {
	p := New(nil)
	resp := run(t, p, `{"query":"elo","matches":[{"homeTeam":"A","awayTeam":"B","result":"H"}],"home":"A","away":"B"}`)
	ctx := resp["context"].(map[string]any)
	ratings := ctx["ratings"].(map[string]any)
	assert.Equal(t, 1514.0, ratings["A"])
	assert.Equal(t, 1486.0, ratings["B"])
	assert.Contains(t, ctx, "prediction")

	// ratings persist between requests
	assert.Equal(t, 1514.0, p.Elo().Rating("A"))
}

func TestPredictQuery(t *testing.T) {
	p := New(nil)
	resp := run(t, p, `{"query":"predict","home":"Arsenal","away":"Chelsea","history":[
		{"homeTeam":"Arsenal","awayTeam":"Chelsea","homeGoals":2,"awayGoals":1},
		{"homeTeam":"Chelsea","awayTeam":"Spurs","homeGoals":0,"awayGoals":0},
		{"homeTeam":"Spurs","awayTeam":"Arsenal","homeGoals":1,"awayGoals":3}
	]}`)
	ctx := resp["context"].(map[string]any)

	poisson := ctx["poisson"].(map[string]any)
	sum := poisson["home_win"].(float64) + poisson["draw"].(float64) + poisson["away_win"].(float64)
	assert.InDelta(t, 1.0, sum, 1e-3)
	assert.Greater(t, poisson["home_win"].(float64), poisson["away_win"].(float64))

	form := ctx["form"].(map[string]any)
	assert.Equal(t, "WW", form["Arsenal"])
	assert.Equal(t, "DL", form["Chelsea"])
	assert.Equal(t, []string{"Arsenal", "Chelsea", "Spurs"}, p.Poisson().Teams())
}

func TestValueBetsQuery(t *testing.T) {
	resp := run(t, New(nil), `{"query":"value_bets","fixtures":[
		{"id":"1","home_team":"A","away_team":"B",
		 "model_1x2":{"home_win":0.55,"draw":0.25,"away_win":0.20},
		 "odds_1x2":{"home_win":2.0,"draw":3.4,"away_win":5.0}},
		{"id":"2","home_team":"C","away_team":"D",
		 "model_1x2":{"home_win":0.30,"draw":0.30,"away_win":0.40},
		 "odds_1x2":{"home_win":2.5,"draw":3.0,"away_win":2.2}}
	]}`)
	ctx := resp["context"].(map[string]any)
	fixtures := ctx["fixtures"].([]any)
	require.Len(t, fixtures, 1)
	assert.Equal(t, "1", fixtures[0].(map[string]any)["fixture_id"])

	ranked := ctx["ranked"].([]any)
	require.Len(t, ranked, 1)
	top := ranked[0].(map[string]any)
	assert.Equal(t, "home_win", top["selection"])
	assert.InDelta(t, 0.10, top["value"].(float64), 1e-9)
}

func TestXGQuery(t *testing.T) {
	resp := run(t, New(nil), `{"query":"xg","strategy":"distance_band",
		"homeShots":[{"distance":5,"angle":0},{"distance":25,"angle":10}],
		"awayShots":[],
		"homeStats":{"shotsInsideBox":10,"shotsOutsideBox":5,"shotsOnTarget":4}}`)
	ctx := resp["context"].(map[string]any)
	assert.Equal(t, "distance_band", ctx["strategy"])
	assert.Equal(t, false, ctx["trained"])

	home := ctx["home"].(map[string]any)
	shots := home["shots"].([]any)
	require.Len(t, shots, 2)
	assert.Greater(t, shots[0].(float64), shots[1].(float64))
	assert.InDelta(t, shots[0].(float64)+shots[1].(float64), home["total"].(float64), 1e-9)
	assert.InDelta(t, 1.38, ctx["homeStatsXG"].(float64), 1e-9)
}

func TestNumericRequestID(t *testing.T) {
	resp := run(t, New(nil), `{"query":"list","requestId":7}`)
	assert.Equal(t, "7", resp["requestId"])
}

func TestEloQueryReset(t *testing.T) {
	p := New(nil)
	run(t, p, `{"query":"elo","matches":[{"homeTeam":"A","awayTeam":"B","result":"home_win"}]}`)
	resp := run(t, p, `{"query":"elo","reset":"true","matches":[{"homeTeam":"C","awayTeam":"D","result":"D"}]}`)
	ratings := resp["context"].(map[string]any)["ratings"].(map[string]any)
	assert.NotContains(t, ratings, "A")
	assert.Contains(t, ratings, "C")
}

func TestValueBetsThresholdOverride(t *testing.T) {
	request := `{"query":"value_bets","threshold":%s,"fixtures":[
		{"id":"1","home_team":"A","away_team":"B",
		 "model_1x2":{"home_win":0.55,"draw":0.25,"away_win":0.20},
		 "odds_1x2":{"home_win":2.0,"draw":3.4,"away_win":5.0}}]}`

	resp := run(t, New(nil), fmt.Sprintf(request, `"0.2"`))
	ctx := resp["context"].(map[string]any)
	assert.Equal(t, 0.2, ctx["threshold"])
	assert.Empty(t, ctx["fixtures"])

	resp = run(t, New(nil), fmt.Sprintf(request, `0.01`))
	assert.Len(t, resp["context"].(map[string]any)["fixtures"], 1)

	resp = run(t, New(nil), fmt.Sprintf(request, `"lots"`))
	assert.Equal(t, CodeInvalidInput, errorCodeOf(t, resp))
}

func TestXGQueryTrainingKeepsRequestedStrategy(t *testing.T) {
	p := New(nil)
	resp := run(t, p, `{"query":"xg","strategy":"distance_band","training":[{"distance":5,"angle":0,"isGoal":true},{"distance":30,"angle":40}]}`)
	assert.Equal(t, CodeInvalidInput, errorCodeOf(t, resp))
	assert.False(t, p.xg.IsTrained())
	assert.NotEqual(t, "logistic", p.xg.Strategy().Name())

	resp = run(t, p, `{"query":"xg","strategy":"heuristic","homeShots":[{"distance":5,"angle":0}]}`)
	assert.Equal(t, "heuristic", resp["context"].(map[string]any)["strategy"])
}

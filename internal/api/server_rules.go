package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabtrim/internal/trim"
)

type rulesBody struct {
	Generation int64            `json:"generation"`
	Rules      trim.RulesConfig `json:"rules"`
}

func registerRuleHandlers(api huma.API, svc Service) {
	type rulesOutput struct {
		Body rulesBody
	}
	huma.Register(api, huma.Operation{OperationID: "get-rules", Method: http.MethodGet, Path: "/api/v1/rules", Summary: "Get the active rule set", Tags: []string{"Rules"}},
		func(ctx context.Context, input *struct{}) (*rulesOutput, error) {
			cfg, gen := svc.GetRules()
			return &rulesOutput{Body: rulesBody{Generation: gen, Rules: cfg}}, nil
		})

	type setRulesInput struct {
		Body trim.RulesConfig
	}
	huma.Register(api, huma.Operation{OperationID: "set-rules", Method: http.MethodPut, Path: "/api/v1/rules", Summary: "Replace the active rule set", Description: "Changes apply to evaluations started after the update and are not persisted.", Tags: []string{"Rules"}},
		func(ctx context.Context, input *setRulesInput) (*rulesOutput, error) {
			cfg, gen, err := svc.SetRules(input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			annotate(ctx, "rules_generation", gen)
			return &rulesOutput{Body: rulesBody{Generation: gen, Rules: cfg}}, nil
		})

	type groupKeyInput struct {
		URL string `query:"url" doc:"Tab URL to compute the group key for"`
	}
	type groupKeyOutput struct {
		Body struct {
			URL       string         `json:"url"`
			GroupKey  string         `json:"group_key"`
			GroupType trim.GroupType `json:"group_type"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "group-key", Method: http.MethodGet, Path: "/api/v1/group-key", Summary: "Compute the host-limit group key for a URL", Tags: []string{"Rules"}},
		func(ctx context.Context, input *groupKeyInput) (*groupKeyOutput, error) {
			key, groupType, err := svc.GroupKey(input.URL)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &groupKeyOutput{}
			out.Body.URL = input.URL
			out.Body.GroupKey = key
			out.Body.GroupType = groupType
			return out, nil
		})
}

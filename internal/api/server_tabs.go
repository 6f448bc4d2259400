package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabtrim/internal/controller"
	"github.com/dgnsrekt/tabtrim/internal/types"
)

func registerTabHandlers(api huma.API, svc Service) {
	type listTabsOutput struct {
		Body struct {
			Tabs []types.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			if out.Body.Tabs == nil {
				out.Body.Tabs = []types.TabInfo{}
			}
			return out, nil
		})

	type trimInput struct {
		Body struct {
			TabID  int  `json:"tab_id" doc:"Tab id to evaluate as the trigger"`
			DryRun bool `json:"dry_run,omitempty" doc:"Report what would be closed without closing anything"`
		}
	}
	type trimOutput struct {
		Body controller.TrimResult
	}
	huma.Register(api, huma.Operation{OperationID: "trim-tab", Method: http.MethodPost, Path: "/api/v1/trim", Summary: "Evaluate the rules for one tab", Tags: []string{"Trim"}},
		func(ctx context.Context, input *trimInput) (*trimOutput, error) {
			annotate(ctx, "trigger_id", input.Body.TabID, "dry_run", input.Body.DryRun)
			result, err := svc.TrimTab(ctx, input.Body.TabID, input.Body.DryRun)
			if err != nil {
				return nil, mapErr(err)
			}
			annotate(ctx, "removed", len(result.Removed()), "group_key", result.GroupKey)
			if result.Records == nil {
				result.Records = []types.TrimRecord{}
			}
			return &trimOutput{Body: result}, nil
		})

	type trimAllInput struct {
		Body struct {
			DryRun bool `json:"dry_run,omitempty" doc:"Report what would be closed without closing anything"`
		}
	}
	type trimAllOutput struct {
		Body struct {
			Results []controller.TrimResult `json:"results"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "trim-all", Method: http.MethodPost, Path: "/api/v1/trim/all", Summary: "Evaluate the rules for every open tab, newest first", Tags: []string{"Trim"}},
		func(ctx context.Context, input *trimAllInput) (*trimAllOutput, error) {
			annotate(ctx, "dry_run", input.Body.DryRun)
			results, err := svc.TrimAll(ctx, input.Body.DryRun)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &trimAllOutput{}
			out.Body.Results = results
			annotate(ctx, "evaluations", len(results))
			if out.Body.Results == nil {
				out.Body.Results = []controller.TrimResult{}
			}
			return out, nil
		})
}

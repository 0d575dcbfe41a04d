package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
)

// buildSchema exposes runs and live progress over GraphQL.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	runType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Run",
		Fields: graphql.Fields{
			"target":     &graphql.Field{Type: graphql.String},
			"layer_id":      &graphql.Field{Type: graphql.Int},
			"layer_name":    &graphql.Field{Type: graphql.String},
			"status":        &graphql.Field{Type: graphql.String},
			"missing":       &graphql.Field{Type: graphql.Int},
			"passes":        &graphql.Field{Type: graphql.Int},
			"features":      &graphql.Field{Type: graphql.Int},
			"error_message": &graphql.Field{Type: graphql.String},
			"updated_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r, ok := p.Source.(domain.Run); ok {
						return r.UpdatedAt.UTC().Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
		},
	})

	progressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LayerProgress",
		Fields: graphql.Fields{
			"target":   &graphql.Field{Type: graphql.String},
			"layer_id": &graphql.Field{Type: graphql.Int},
			"pass":     &graphql.Field{Type: graphql.Int},
			"total":    &graphql.Field{Type: graphql.Int},
			"missing":  &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"runs": &graphql.Field{
				Type:        graphql.NewList(runType),
				Description: "Runs of every target, or of one target when given",
				Args: graphql.FieldConfigArgument{
					"target": &graphql.ArgumentConfig{Type: graphql.String},
					"status": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var (
						runs []domain.Run
						err  error
					)
					if target, ok := p.Args["target"].(string); ok && target != "" {
						runs, err = deps.Runs.ForTarget(p.Context, target)
					} else {
						runs, err = deps.Runs.List(p.Context)
					}
					if err != nil {
						return nil, err
					}
					status, _ := p.Args["status"].(string)
					if status == "" {
						return runs, nil
					}
					var out []domain.Run
					for _, r := range runs {
						if r.Status == status {
							out = append(out, r)
						}
					}
					return out, nil
				},
			},
			"progress": &graphql.Field{
				Type:        graphql.NewList(progressType),
				Description: "Latest reconciliation per layer of a target",
				Args: graphql.FieldConfigArgument{
					"target": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Progress == nil {
						return []domain.PassEvent{}, nil
					}
					return deps.Progress.ForTarget(p.Context, p.Args["target"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return newError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		return c.JSON(result)
	}
}

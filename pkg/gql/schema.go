package gql

import (
	"strconv"

	"canvas-notes-backend/pkg/middleware"
	"canvas-notes-backend/pkg/models"
	"canvas-notes-backend/pkg/service"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// jsonScalar carries free-form content/position payloads through the wire
// unchanged. Values serialize as plain JSON.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:         "JSON",
	Description:  "Arbitrary JSON value",
	Serialize:    func(value interface{}) interface{} { return value },
	ParseValue:   func(value interface{}) interface{} { return value },
	ParseLiteral: parseJSONLiteral,
})

func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if i, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return i
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, parseJSONLiteral(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name.Value] = parseJSONLiteral(f.Value)
		}
		return out
	default:
		return nil
	}
}

// callerID resolves the authenticated user from the request context.
// Absence is fine here; the service turns it into UNAUTHENTICATED.
func callerID(p graphql.ResolveParams) string {
	if user, ok := middleware.GetUserFromContext(p.Context); ok && user != nil {
		return user.ID
	}
	return ""
}

// NewSchema builds the query/mutation schema over a graph service.
func NewSchema(svc *service.GraphService) (graphql.Schema, error) {
	positionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Position",
		Fields: graphql.Fields{
			"x": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"y": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	sizeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Size",
		Fields: graphql.Fields{
			"width":  &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"height": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	positionInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PositionInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"x": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"y": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	blockType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Block",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: blockField(func(b *models.Block) interface{} { return b.ID }),
			},
			"canvasId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: blockField(func(b *models.Block) interface{} { return b.CanvasID }),
			},
			"userId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: blockField(func(b *models.Block) interface{} { return b.UserID }),
			},
			"type": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: blockField(func(b *models.Block) interface{} { return b.Type }),
			},
			"content": &graphql.Field{
				Type:    graphql.NewNonNull(jsonScalar),
				Resolve: blockField(func(b *models.Block) interface{} { return b.Content }),
			},
			"position": &graphql.Field{
				Type:    graphql.NewNonNull(positionType),
				Resolve: blockField(func(b *models.Block) interface{} { return b.Position }),
			},
			"size": &graphql.Field{
				Type:    graphql.NewNonNull(sizeType),
				Resolve: blockField(func(b *models.Block) interface{} { return b.Size }),
			},
			"notes": &graphql.Field{
				Type:    graphql.String,
				Resolve: blockField(func(b *models.Block) interface{} { return b.Notes }),
			},
			"createdAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: blockField(func(b *models.Block) interface{} { return b.CreatedAt }),
			},
			"updatedAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: blockField(func(b *models.Block) interface{} { return b.UpdatedAt }),
			},
		},
	})

	connectionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Connection",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.ID }),
			},
			"canvasId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.CanvasID }),
			},
			"sourceBlockId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.SourceBlockID }),
			},
			"targetBlockId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.TargetBlockID }),
			},
			"sourceHandle": &graphql.Field{
				Type:    graphql.String,
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.SourceHandle }),
			},
			"targetHandle": &graphql.Field{
				Type:    graphql.String,
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.TargetHandle }),
			},
			"createdAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: connectionField(func(c *models.Connection) interface{} { return c.CreatedAt }),
			},
		},
	})

	canvasType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Canvas",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.ID }),
			},
			"userId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.UserID }),
			},
			"title": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.Title }),
			},
			"isPublic": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.IsPublic }),
			},
			"createdAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.CreatedAt }),
			},
			"updatedAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: canvasField(func(c *models.Canvas) interface{} { return c.UpdatedAt }),
			},
			"blocks": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(blockType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, err := sourceCanvas(p.Source)
					if err != nil {
						return nil, err
					}
					return svc.ListBlocks(callerID(p), c.ID)
				},
			},
			"connections": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(connectionType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, err := sourceCanvas(p.Source)
					if err != nil {
						return nil, err
					}
					return svc.ListConnections(callerID(p), c.ID)
				},
			},
		},
	})

	canvasSummaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CanvasSummary",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.ID),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.ID }),
			},
			"title": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.Title }),
			},
			"isPublic": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.IsPublic }),
			},
			"blockCount": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Int),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.BlockCount }),
			},
			"createdAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.CreatedAt }),
			},
			"updatedAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.DateTime),
				Resolve: summaryField(func(c models.CanvasSummary) interface{} { return c.UpdatedAt }),
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"myCanvases": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(canvasSummaryType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.ListCanvases(callerID(p))
				},
			},
			"canvas": &graphql.Field{
				Type: canvasType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.GetCanvas(callerID(p), stringArg(p, "id"))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createCanvas": &graphql.Field{
				Type: graphql.NewNonNull(canvasType),
				Args: graphql.FieldConfigArgument{
					"title": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.CreateCanvas(callerID(p), stringArg(p, "title"))
				},
			},
			"updateCanvasTitle": &graphql.Field{
				Type: graphql.NewNonNull(canvasType),
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"title": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.UpdateCanvasTitle(callerID(p), stringArg(p, "id"), stringArg(p, "title"))
				},
			},
			"createBlock": &graphql.Field{
				Type: graphql.NewNonNull(blockType),
				Args: graphql.FieldConfigArgument{
					"canvasId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"type":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"position": &graphql.ArgumentConfig{Type: graphql.NewNonNull(positionInput)},
					"content":  &graphql.ArgumentConfig{Type: jsonScalar},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pos, err := positionArg(p, "position")
					if err != nil {
						return nil, err
					}
					content, _ := p.Args["content"].(map[string]interface{})
					return svc.CreateBlock(callerID(p), stringArg(p, "canvasId"), stringArg(p, "type"), pos, content)
				},
			},
			"updateBlockPosition": &graphql.Field{
				Type: graphql.NewNonNull(blockType),
				Args: graphql.FieldConfigArgument{
					"blockId":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"position": &graphql.ArgumentConfig{Type: graphql.NewNonNull(positionInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pos, err := positionArg(p, "position")
					if err != nil {
						return nil, err
					}
					return svc.UpdateBlockPosition(callerID(p), stringArg(p, "blockId"), pos)
				},
			},
			"updateBlockContent": &graphql.Field{
				Type: graphql.NewNonNull(blockType),
				Args: graphql.FieldConfigArgument{
					"blockId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"content": &graphql.ArgumentConfig{Type: jsonScalar},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					content, _ := p.Args["content"].(map[string]interface{})
					return svc.UpdateBlockContent(callerID(p), stringArg(p, "blockId"), content)
				},
			},
			"updateBlockNotes": &graphql.Field{
				Type: graphql.NewNonNull(blockType),
				Args: graphql.FieldConfigArgument{
					"blockId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"notes":   &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var notes *string
					if v, ok := p.Args["notes"].(string); ok {
						notes = &v
					}
					return svc.UpdateBlockNotes(callerID(p), stringArg(p, "blockId"), notes)
				},
			},
			"undoBlockCreation": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"blockId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.UndoBlockCreation(callerID(p), stringArg(p, "blockId"))
				},
			},
			"createConnection": &graphql.Field{
				Type: graphql.NewNonNull(connectionType),
				Args: graphql.FieldConfigArgument{
					"canvasId":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"sourceBlockId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"targetBlockId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"sourceHandle":  &graphql.ArgumentConfig{Type: graphql.String},
					"targetHandle":  &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.CreateConnection(callerID(p),
						stringArg(p, "canvasId"),
						stringArg(p, "sourceBlockId"),
						stringArg(p, "targetBlockId"),
						stringArg(p, "sourceHandle"),
						stringArg(p, "targetHandle"))
				},
			},
			"deleteConnection": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"connectionId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return svc.DeleteConnection(callerID(p), stringArg(p, "connectionId"))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// ==== resolver helpers ====

func stringArg(p graphql.ResolveParams, name string) string {
	v, _ := p.Args[name].(string)
	return v
}

func positionArg(p graphql.ResolveParams, name string) (models.Position, error) {
	raw, ok := p.Args[name].(map[string]interface{})
	if !ok {
		return models.Position{}, &service.Error{Code: service.CodeBadInput, Message: "position is required"}
	}
	x, xok := toFloat(raw["x"])
	y, yok := toFloat(raw["y"])
	if !xok || !yok {
		return models.Position{}, &service.Error{Code: service.CodeBadInput, Message: "position must have numeric x and y"}
	}
	return models.Position{X: x, Y: y}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sourceCanvas(source interface{}) (*models.Canvas, error) {
	switch c := source.(type) {
	case *models.Canvas:
		return c, nil
	case models.Canvas:
		return &c, nil
	default:
		return nil, &service.Error{Code: service.CodeInternal, Message: "unexpected canvas source"}
	}
}

func blockField(get func(*models.Block) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch b := p.Source.(type) {
		case *models.Block:
			return get(b), nil
		case models.Block:
			return get(&b), nil
		}
		return nil, nil
	}
}

func connectionField(get func(*models.Connection) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch c := p.Source.(type) {
		case *models.Connection:
			return get(c), nil
		case models.Connection:
			return get(&c), nil
		}
		return nil, nil
	}
}

func canvasField(get func(*models.Canvas) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		c, err := sourceCanvas(p.Source)
		if err != nil {
			return nil, err
		}
		return get(c), nil
	}
}

func summaryField(get func(models.CanvasSummary) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch c := p.Source.(type) {
		case models.CanvasSummary:
			return get(c), nil
		case *models.CanvasSummary:
			return get(*c), nil
		}
		return nil, nil
	}
}

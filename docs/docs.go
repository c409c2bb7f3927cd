// Package docs registers the admin API description for gin-swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/shops/{shop_id}/products": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "List products",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Name contains", "name": "q", "in": "query"},
                    {"type": "boolean", "description": "Include inactive", "name": "all", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Product"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Create product",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"description": "Product", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpapi.productReq"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Product"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/shops/{shop_id}/products/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Get product by id",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Product"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["products"],
                "summary": "Update product",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true},
                    {"description": "Update", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpapi.productReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Product"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "delete": {
                "tags": ["products"],
                "summary": "Deactivate product",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Product ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/shops/{shop_id}/orders": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "List shop orders, newest first",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Filter by status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Order"}}}
                }
            }
        },
        "/shops/{shop_id}/orders/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get order with items",
                "parameters": [
                    {"type": "string", "description": "Shop ID", "name": "shop_id", "in": "path", "required": true},
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.OrderDetails"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "domain.Product": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "shop_id": {"type": "string"},
                "name": {"type": "string"},
                "price": {"type": "integer"},
                "stock": {"type": "integer"},
                "keywords": {"type": "array", "items": {"type": "string"}},
                "is_active": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "domain.Order": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "shop_id": {"type": "string"},
                "channel_id": {"type": "string"},
                "customer_psid": {"type": "string"},
                "status": {"type": "string"},
                "pending_product": {"$ref": "#/definitions/domain.ProductRef"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.OrderItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "order_id": {"type": "string"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "unit_price": {"type": "integer"},
                "quantity": {"type": "integer"},
                "line_total": {"type": "integer"}
            }
        },
        "domain.ProductRef": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "service.OrderDetails": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "shop_id": {"type": "string"},
                "channel_id": {"type": "string"},
                "customer_psid": {"type": "string"},
                "status": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/domain.OrderItem"}},
                "total": {"type": "integer"}
            }
        },
        "httpapi.productReq": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "price": {"type": "integer"},
                "stock": {"type": "integer"},
                "keywords": {"type": "array", "items": {"type": "string"}},
                "is_active": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "orderbot admin API",
	Description:      "Catalog and order administration for the Messenger order bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

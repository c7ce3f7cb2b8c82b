package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable Engine API",
        "description": "Constraint-based class timetable generator and conflict engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    }
                }
            }
        },
        "/timetable/generate": {
            "post": {
                "summary": "Generate schedule candidates",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/timetable/validate": {
            "post": {
                "summary": "Validate an arbitrary entry set",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/timetable/versions/{version_id}/entries/{entry_id}/suggest": {
            "get": {
                "summary": "Suggest alternate slots for an entry",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/timetable/entries/{entry_id}/move": {
            "post": {
                "summary": "Move an entry to a new slot",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/timetable/versions/{version_id}/activate": {
            "post": {
                "summary": "Activate a schedule version",
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/timetable/versions/{version_id}/report": {
            "get": {
                "summary": "Get a schedule version's report payload",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

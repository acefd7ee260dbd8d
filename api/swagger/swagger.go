package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "IEP API",
        "description": "IEP tracking: students, plans, goals, behavior log, compliance and reports",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token management"},
        {"name": "Students", "description": "Caseload roster"},
        {"name": "IEPs", "description": "Plan lifecycle: draft, activate, amend"},
        {"name": "Goals", "description": "Goals, progress data points and derived status"},
        {"name": "Behavior", "description": "Append-only ABC event log"},
        {"name": "Compliance", "description": "Date-driven obligation checks"},
        {"name": "Dashboard", "description": "Caseload overview"},
        {"name": "Reports", "description": "Asynchronous CSV/PDF exports"},
        {"name": "Assistant", "description": "Goal drafting suggestions"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Invalid or expired refresh token"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "responses": {"200": {"description": "Paginated students"}}
            },
            "post": {
                "tags": ["Students"],
                "summary": "Enroll a student",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Student detail with active IEP context",
                "responses": {"200": {"description": "Student"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "responses": {"200": {"description": "Updated"}}
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Deactivate student (soft delete)",
                "responses": {"204": {"description": "Deactivated"}}
            }
        },
        "/ieps": {
            "get": {
                "tags": ["IEPs"],
                "summary": "List IEP history",
                "responses": {"200": {"description": "Paginated IEPs"}}
            },
            "post": {
                "tags": ["IEPs"],
                "summary": "Create a draft IEP",
                "responses": {"201": {"description": "Draft created"}}
            }
        },
        "/ieps/{id}/activate": {
            "post": {
                "tags": ["IEPs"],
                "summary": "Activate a draft, expiring any prior active IEP",
                "responses": {"200": {"description": "Active"}, "409": {"description": "Not a draft"}}
            }
        },
        "/ieps/{id}/amend": {
            "post": {
                "tags": ["IEPs"],
                "summary": "Amend the active IEP",
                "responses": {"201": {"description": "Replacement created"}, "409": {"description": "Not active"}}
            }
        },
        "/goals": {
            "get": {
                "tags": ["Goals"],
                "summary": "List goals",
                "responses": {"200": {"description": "Paginated goals"}}
            },
            "post": {
                "tags": ["Goals"],
                "summary": "Create goal",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/goals/{id}/progress": {
            "post": {
                "tags": ["Goals"],
                "summary": "Record a progress data point",
                "responses": {
                    "201": {"description": "Point appended, status derived"},
                    "409": {"description": "Goal closed or version conflict"},
                    "422": {"description": "Measurement type mismatch"}
                }
            }
        },
        "/goals/{id}/close": {
            "post": {
                "tags": ["Goals"],
                "summary": "Close a goal as mastered or discontinued",
                "responses": {"200": {"description": "Closed"}, "409": {"description": "Already closed"}}
            }
        },
        "/behavior-events": {
            "get": {
                "tags": ["Behavior"],
                "summary": "List behavior events",
                "responses": {"200": {"description": "Paginated events"}}
            },
            "post": {
                "tags": ["Behavior"],
                "summary": "Record an ABC observation",
                "responses": {"201": {"description": "Recorded"}}
            }
        },
        "/behavior-events/{id}/follow-up": {
            "post": {
                "tags": ["Behavior"],
                "summary": "Append a follow-up note",
                "responses": {"204": {"description": "Appended"}}
            }
        },
        "/students/{studentId}/behavior-summary": {
            "get": {
                "tags": ["Behavior"],
                "summary": "Summarize events over a date range",
                "responses": {"200": {"description": "Summary"}}
            }
        },
        "/students/{studentId}/compliance": {
            "get": {
                "tags": ["Compliance"],
                "summary": "Check one student's obligations",
                "responses": {"200": {"description": "Obligations"}}
            }
        },
        "/compliance/sweep": {
            "get": {
                "tags": ["Compliance"],
                "summary": "Sweep active IEPs for due or overdue obligations",
                "responses": {"200": {"description": "Flagged students"}}
            }
        },
        "/dashboard/caseload": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Caseload overview",
                "responses": {"200": {"description": "Overview"}}
            }
        },
        "/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "List the caller's report jobs",
                "responses": {"200": {"description": "Jobs"}}
            },
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a report",
                "responses": {"202": {"description": "Queued"}}
            }
        },
        "/reports/{id}/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished artifact via signed token",
                "responses": {"200": {"description": "File"}, "401": {"description": "Bad token"}}
            }
        },
        "/assistant/suggest-goal": {
            "post": {
                "tags": ["Assistant"],
                "summary": "Suggest a goal draft",
                "responses": {"200": {"description": "Suggestion"}}
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
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

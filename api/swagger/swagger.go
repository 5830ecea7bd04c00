package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Konnect Reservations API",
        "description": "Mentoring session reservations, payments and slot coordination.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Reservations", "description": "Slot holds and the reservation lifecycle"},
        {"name": "Payments", "description": "Payment confirmation and refunds"},
        {"name": "Availability", "description": "Mentor weekly availability windows"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/sessions/{id}/available-times": {
            "get": {
                "tags": ["Reservations"],
                "summary": "List bookable windows of a session on a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AvailableTimesResponse"}},
                    "400": {"description": "Invalid date", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Hold a slot pending payment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateReservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/CreateReservationResponse"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/me": {
            "get": {
                "tags": ["Reservations"],
                "summary": "List the current user's reservations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Get a reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/cancel": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Release an unpaid hold",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "400": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/reject": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Mentor declines a pending reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectReservationRequest"}}
                ],
                "responses": {
                    "204": {"description": "Rejected"},
                    "400": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the session's mentor", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/review-eligibility": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Check whether the mentee may review the session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/room": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Get the shared room of a paid reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active room", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/room/pass": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Issue a short-lived join token for the reservation's room",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/RoomPass"}},
                    "403": {"description": "Not a participant", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rooms/verify": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Resolve a room join token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RoomPass"}},
                    "401": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Room no longer active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/confirm": {
            "post": {
                "tags": ["Payments"],
                "summary": "Confirm a charge for a pending reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Receipt"}},
                    "400": {"description": "Amount mismatch or invalid state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Reservation changed during settlement", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Processor rejected the charge", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/refund": {
            "post": {
                "tags": ["Payments"],
                "summary": "Refund a confirmed reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefundPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Not refundable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Payment not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/mentors/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "List a mentor's weekly windows",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "day", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/availability": {
            "post": {
                "tags": ["Availability"],
                "summary": "Add a weekly window",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertAvailabilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlapping window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/availability/{id}": {
            "put": {
                "tags": ["Availability"],
                "summary": "Replace a weekly window",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Availability"],
                "summary": "Delete a weekly window",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/exports/schedule": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Download a mentor's booked sessions",
                "produces": ["text/csv", "application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "from", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "mentor_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "400": {"description": "Invalid range", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not a mentor", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "JSON metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateReservationRequest": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"},
                "date": {"type": "string", "format": "date"},
                "startTime": {"type": "string", "example": "10:00"},
                "endTime": {"type": "string", "example": "11:00"},
                "question": {"type": "string"}
            },
            "required": ["sessionId", "date", "startTime", "endTime"]
        },
        "CreateReservationResponse": {
            "type": "object",
            "properties": {
                "reservationId": {"type": "string"},
                "status": {"type": "string"},
                "expiresAt": {"type": "string", "format": "date-time"}
            }
        },
        "RejectReservationRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "TimeWindow": {
            "type": "object",
            "properties": {
                "availabilityId": {"type": "string"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"}
            }
        },
        "AvailableTimesResponse": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"},
                "date": {"type": "string"},
                "dayOfWeek": {"type": "string"},
                "windows": {"type": "array", "items": {"$ref": "#/definitions/TimeWindow"}}
            }
        },
        "Reservation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "sessionId": {"type": "string"},
                "sessionTitle": {"type": "string"},
                "mentorId": {"type": "string"},
                "menteeId": {"type": "string"},
                "date": {"type": "string"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "PROGRESS", "COMPLETED", "CANCELLED", "EXPIRED", "REJECTED"]},
                "price": {"type": "integer"},
                "expiresAt": {"type": "string", "format": "date-time"},
                "paidAt": {"type": "string", "format": "date-time"},
                "rejectReason": {"type": "string"},
                "roomId": {"type": "string"}
            }
        },
        "ConfirmPaymentRequest": {
            "type": "object",
            "properties": {
                "orderId": {"type": "string"},
                "paymentKey": {"type": "string"},
                "amount": {"type": "integer"}
            },
            "required": ["orderId", "paymentKey", "amount"]
        },
        "RefundPaymentRequest": {
            "type": "object",
            "properties": {
                "paymentKey": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["paymentKey"]
        },
        "Receipt": {
            "type": "object",
            "properties": {
                "reservation_id": {"type": "string"},
                "order_id": {"type": "string"},
                "payment_key": {"type": "string"},
                "amount": {"type": "integer"},
                "status": {"type": "string"},
                "receipt_url": {"type": "string"},
                "approved_at": {"type": "string", "format": "date-time"},
                "replayed": {"type": "boolean"}
            }
        },
        "RoomPass": {
            "type": "object",
            "properties": {
                "room_id": {"type": "string"},
                "reservation_id": {"type": "string"},
                "user_id": {"type": "string"},
                "token": {"type": "string"},
                "expires_at": {"type": "string", "format": "date-time"}
            }
        },
        "UpsertAvailabilityRequest": {
            "type": "object",
            "properties": {
                "dayOfWeek": {"type": "string", "enum": ["MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"]},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"}
            },
            "required": ["dayOfWeek", "startTime", "endTime"]
        },
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

package outbox

const enrollmentCreatedSchema = `{
  "type": "object",
  "title": "EnrollmentCreated",
  "properties": {
    "enrollment_id": {"type": "string"},
    "class_id": {"type": "string"},
    "facility_id": {"type": "integer"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "position": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["enrollment_id", "class_id", "facility_id", "user_id", "state", "occurred_at"],
  "additionalProperties": false
}`

const enrollmentStateChangedSchema = `{
  "type": "object",
  "title": "EnrollmentStateChanged",
  "properties": {
    "enrollment_id": {"type": "string"},
    "class_id": {"type": "string"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "reason": {"type": "string"}
  },
  "required": ["enrollment_id", "class_id", "user_id", "state", "occurred_at"],
  "additionalProperties": false
}`

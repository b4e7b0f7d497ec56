package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar — HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Campos estándar — negocio

func TenantID(v string) zap.Field     { return zap.String("tenant_id", v) }
func OfficeID(v string) zap.Field     { return zap.String("office_id", v) }
func ConnectionID(v string) zap.Field { return zap.String("connection_id", v) }
func Provider(v string) zap.Field     { return zap.String("provider", v) }
func EventType(v string) zap.Field    { return zap.String("event_type", v) }
func ReceiptID(v string) zap.Field    { return zap.String("receipt_id", v) }
func Stream(v string) zap.Field       { return zap.String("stream", v) }

// Campos estándar — sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Campos genéricos

func Count(v int) zap.Field            { return zap.Int("count", v) }
func ID(v string) zap.Field            { return zap.String("id", v) }
func String(key, v string) zap.Field   { return zap.String(key, v) }
func Int(key string, v int) zap.Field  { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field  { return zap.Any(key, v) }

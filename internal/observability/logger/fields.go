package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// Provider crea un campo para el proveedor de identidad externo (slug).
func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

// IntentID crea un campo para el ID del intent del IDP.
func IntentID(v string) zap.Field {
	return zap.String("intent_id", v)
}

// IdpID crea un campo para el ID de configuración del IDP.
func IdpID(v string) zap.Field {
	return zap.String("idp_id", v)
}

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// OrgID crea un campo para el ID de la organización.
func OrgID(v string) zap.Field {
	return zap.String("org_id", v)
}

// SessionID crea un campo para el ID de la sesión de linking.
func SessionID(v string) zap.Field {
	return zap.String("session_id", v)
}

// Outcome crea un campo para el resultado de la decisión del callback.
func Outcome(v string) zap.Field {
	return zap.String("outcome", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - INFRAESTRUCTURA
// =================================================================================

// Layer identifica la capa: "controller", "service", "store".
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Component identifica el componente dentro de la capa.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op identifica la operación (ej: "CallbackController.Callback").
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo estándar para errores.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// String re-exporta zap.String para evitar importar zap en los call sites.
func String(key, val string) zap.Field {
	return zap.String(key, val)
}

// Bool re-exporta zap.Bool.
func Bool(key string, val bool) zap.Field {
	return zap.Bool(key, val)
}

// Int re-exporta zap.Int.
func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Duration re-exporta zap.Duration.
func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}

// Any re-exporta zap.Any (valores arbitrarios, ej: recover()).
func Any(key string, val any) zap.Field {
	return zap.Any(key, val)
}

package bot

// チャットへの返信文（HTMLパースモード）。
// 利用者向けの文言は固定文で、内部の識別子やストアのエラー内容を含めない。
const (
	replyWelcome = "🔐 Bienvenido al Bot de Correos Muriarq.\n\n" +
		"Por favor, inicia sesión:\n<code>/login usuario contraseña</code>"

	replyLoginUsage       = "❌ Uso: <code>/login usuario contraseña</code>"
	replyUnknownAccount   = "❌ Usuario no encontrado."
	replyAccountDisabled  = "❌ Usuario desactivado."
	replyAccountLocked    = "❌ Demasiados intentos fallidos. Cuenta bloqueada."
	replyInvalidPassword  = "❌ Contraseña incorrecta. Intentos: %d/%d"
	replyLoginSucceeded   = "✅ ¡Inicio de sesión exitoso!\n\nUsa: <code>/correo nombre%s</code> para consultar correos."
	replyLoginInternalErr = "⚠️ Error interno. Contacta al administrador."

	replyCorreoUsage       = "❌ Uso: <code>/correo nombre%s</code>"
	replyLoginRequired     = "🔒 Primero inicia sesión con <code>/login usuario contraseña</code>."
	replyDomainOnly        = "❌ Solo se permiten correos de %s"
	replyNotAssigned       = "❌ Este correo no está asignado a ningún usuario autorizado."
	replyCorreoInternalErr = "⚠️ Error al procesar la solicitud."

	replySearching = "🔍 Buscando correos relacionados con <code>%s</code> en tu bandeja...\n\n" +
		"<i>(Nota: La integración completa con Gmail requiere un paso adicional de autorización OAuth. Te guiaré después.)</i>"

	replyLoggedOut   = "👋 Sesión cerrada."
	replyLogoutErr   = "⚠️ No se pudo cerrar la sesión. Inténtalo de nuevo."
	replyRateLimited = "⏳ Demasiadas solicitudes. Espera un momento e inténtalo de nuevo."
)
